// Package keysvc implements the key-holding services releasing threshold
// decryption shares.
//
// The collective secret is split with a trusted dealer at committee setup.
// A server holds one or more consecutive shares of the polynomial: holding w
// shares gives it a decryption weight of w. Before computing anything, a
// server re-verifies the session certificate and re-evaluates the access
// policy on chain, so a forged or stale client claim never reaches the
// cryptography.
package keysvc

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/session"
)

var suite = suites.MustFind("Ed25519")

// Committee is the result of the trusted-dealer setup: the collective public
// key and the private share material of each server.
type Committee struct {
	pubKey    kyber.Point
	shares    [][]*share.PriShare
	threshold int
	total     int
}

// NewCommittee splits a fresh collective secret between the servers. The
// weights give the number of shares each server holds, and the threshold is
// the total share weight required to decrypt.
func NewCommittee(weights []int, threshold int) (Committee, error) {
	total := 0
	for _, w := range weights {
		if w <= 0 {
			return Committee{}, xerrors.Errorf("invalid weight %d", w)
		}

		total += w
	}

	if threshold <= 0 || threshold > total {
		return Committee{}, xerrors.Errorf("invalid threshold %d for total weight %d",
			threshold, total)
	}

	secret := suite.Scalar().Pick(random.New())
	poly := share.NewPriPoly(suite, threshold, secret, random.New())

	priShares := poly.Shares(total)

	shares := make([][]*share.PriShare, len(weights))
	next := 0
	for i, w := range weights {
		shares[i] = priShares[next : next+w]
		next += w
	}

	return Committee{
		pubKey:    suite.Point().Mul(secret, nil),
		shares:    shares,
		threshold: threshold,
		total:     total,
	}, nil
}

// GetPublicKey returns the collective public key documents are encrypted to.
func (c Committee) GetPublicKey() kyber.Point {
	return c.pubKey
}

// GetThreshold returns the share weight required to decrypt.
func (c Committee) GetThreshold() int {
	return c.threshold
}

// GetTotal returns the total share weight of the committee.
func (c Committee) GetTotal() int {
	return c.total
}

// GetShares returns the private share material of the i-th server.
func (c Committee) GetShares(i int) []*share.PriShare {
	return append([]*share.PriShare{}, c.shares[i]...)
}

// Server is one key-holding service. It validates share requests and
// computes the partial decryptions of the shares it holds.
type Server struct {
	shares []*share.PriShare
	ledger ledger.Client
	logger zerolog.Logger
}

// NewServer creates a new key-holding server from its share material and a
// ledger client used to evaluate access policies.
func NewServer(shares []*share.PriShare, lc ledger.Client) *Server {
	return &Server{
		shares: shares,
		ledger: lc,
		logger: signet.Logger.With().Str("component", "keysvc").Logger(),
	}
}

// GetWeight returns the decryption weight of the server.
func (s *Server) GetWeight() int {
	return len(s.shares)
}

// ProcessShareRequest validates the request and returns the partial
// decryptions of the held shares. Validation happens in this order: the
// session certificate itself, the binding of the policy transaction to the
// certificate and the requested document, then the policy on chain.
func (s *Server) ProcessShareRequest(ctx context.Context, req ShareRequest) (ShareReply, error) {
	key, err := session.Import(req.GetSessionKey())
	if err != nil {
		return ShareReply{}, xerrors.Errorf("failed to import session key: %w", err)
	}

	err = key.Verify(time.Now())
	if err != nil {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w", err)
	}

	if key.GetScope() != allowlist.ContractName {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("scope '"+key.GetScope()+"' is not handled"))
	}

	tx, err := ledger.DeserializeTransaction(req.GetPolicyTx())
	if err != nil {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("bad policy tx"))
	}

	if !tx.GetSender().Equal(key.GetAddress()) {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("policy tx sender does not match the session address"))
	}

	if tx.GetContract() != key.GetScope() {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("policy tx contract does not match the session scope"))
	}

	if !bytes.Equal(tx.GetArg(allowlist.BlobArg), req.GetBlob()) {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("policy tx blob does not match the request"))
	}

	// The policy is re-evaluated on chain: the client's claim of membership
	// is never trusted.
	err = s.ledger.DryRun(ctx, tx)
	if err != nil {
		return ShareReply{}, xerrors.Errorf("refused by policy: %w", err)
	}

	if req.GetK() == nil || req.GetC() == nil {
		return ShareReply{}, xerrors.Errorf("invalid session key: %w",
			session.NewMalformedError("missing ciphertext points"))
	}

	shares := make([]*share.PubShare, len(s.shares))
	for i, priShare := range s.shares {
		blind := suite.Point().Mul(priShare.V, req.GetK())

		shares[i] = &share.PubShare{
			I: priShare.I,
			V: suite.Point().Sub(req.GetC(), blind),
		}
	}

	s.logger.Info().
		Str("address", key.GetAddress().String()).
		Str("blob", string(req.GetBlob())).
		Int("weight", len(shares)).
		Msg("released decryption shares")

	return NewShareReply(shares), nil
}
