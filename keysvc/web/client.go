package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/keysvc"
	"go.signet.dev/signet/session"
)

// shareAttempts bounds the retries of a share request on transient faults.
// Typed refusals are never retried.
const shareAttempts = 3

// TransientError is returned when a share request failed for a reason that
// is worth retrying: a transport fault or a server-side breakage.
type TransientError struct {
	reason string
}

// NewTransientError returns a new instance of the error.
func NewTransientError(reason string) TransientError {
	return TransientError{reason: reason}
}

func (err TransientError) Error() string {
	return fmt.Sprintf("transient fault: %s", err.reason)
}

// Is returns true when the other error has the same type.
func (err TransientError) Is(other error) bool {
	_, ok := other.(TransientError)
	return ok
}

// Client requests decryption shares from one key-holding server over HTTP.
//
// - implements threshold.ShareClient
type Client struct {
	addr   string
	weight int
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a client for the server at the address, announcing the
// decryption weight the server holds.
func NewClient(addr string, weight int) *Client {
	return &Client{
		addr:   addr,
		weight: weight,
		http:   &http.Client{},
		logger: signet.Logger.With().Str("component", "keysvc-client").Str("addr", addr).Logger(),
	}
}

// GetWeight implements threshold.ShareClient.
func (c *Client) GetWeight() int {
	return c.weight
}

// ProcessShareRequest implements threshold.ShareClient. Transient faults are
// retried a bounded number of times, while a typed refusal is returned right
// away.
func (c *Client) ProcessShareRequest(ctx context.Context, req keysvc.ShareRequest) (keysvc.ShareReply, error) {
	m, err := encodeShareRequest(req)
	if err != nil {
		return keysvc.ShareReply{}, err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return keysvc.ShareReply{}, xerrors.Errorf("failed to marshal request: %v", err)
	}

	var reply keysvc.ShareReply
	var refusal error

	err = retry.New(retry.Context(ctx), retry.Attempts(shareAttempts)).Do(func() error {
		rep, err := c.do(ctx, body)
		if err != nil {
			if xerrors.Is(err, NewTransientError("")) {
				return err
			}

			// A typed refusal is final: do not retry.
			refusal = err

			return nil
		}

		reply = rep

		return nil
	})
	if err != nil {
		return keysvc.ShareReply{}, xerrors.Errorf("retries exhausted: %w", err)
	}

	if refusal != nil {
		return keysvc.ShareReply{}, refusal
	}

	return reply, nil
}

func (c *Client) do(ctx context.Context, body []byte) (keysvc.ShareReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.addr+"/v1/share", bytes.NewReader(body))
	if err != nil {
		return keysvc.ShareReply{}, xerrors.Errorf("failed to make request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return keysvc.ShareReply{}, NewTransientError(err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return keysvc.ShareReply{}, decodeRefusal(resp.StatusCode, resp.Body)
	}

	m := shareReplyJSON{}

	err = json.NewDecoder(resp.Body).Decode(&m)
	if err != nil {
		return keysvc.ShareReply{}, NewTransientError("bad reply: " + err.Error())
	}

	return decodeShareReply(m)
}

// decodeRefusal maps a refusal on the wire back to its typed error.
func decodeRefusal(status int, body io.Reader) error {
	m := refusalJSON{}

	err := json.NewDecoder(body).Decode(&m)
	if err != nil || status >= http.StatusInternalServerError {
		return NewTransientError(fmt.Sprintf("status %d", status))
	}

	switch m.Kind {
	case KindPolicy:
		return allowlist.NewPolicyRefusedError(m.Message)
	case KindExpired:
		return session.NewExpiredError()
	case KindUnsigned:
		return session.NewUnsignedError(m.Message)
	case KindMalformed:
		return session.NewMalformedError(m.Message)
	default:
		return NewTransientError(m.Message)
	}
}
