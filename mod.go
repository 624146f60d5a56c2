// Package signet implements time-scoped access to threshold-encrypted
// documents gated by a ledger-held access list.
//
// A document is sealed under the collective public key of a committee of
// independent key-holding services. A member of the access list obtains a
// short-lived session key with a single wallet signature and uses it to
// request partial decryptions from the committee. Each service re-validates
// the session key and the on-chain membership policy on its own before
// releasing its share. Plaintext is recovered once a configured threshold
// of shares has been collected.
//
// Separately, each member can record an immutable approval ("signature")
// against the same list, tracked in an indirect keyed table so that it can
// be queried per member without loading the whole list.
package signet

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)

// PromCollectors holds the prometheus collectors created by the packages of
// the module. The key-server web component serves them on its metrics
// endpoint.
var PromCollectors []prometheus.Collector
