// Package web implements the HTTP transport of the key-holding services.
//
// The transport is JSON over HTTP. A refusal travels with a kind tag so the
// client can tell a policy refusal, which must not be retried, from a
// transient fault, which may.
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/keysvc"
	"go.signet.dev/signet/session"
)

var suite = suites.MustFind("Ed25519")

// Refusal kinds on the wire.
const (
	KindPolicy    = "policy"
	KindExpired   = "expired"
	KindUnsigned  = "unsigned"
	KindMalformed = "malformed"
	KindInternal  = "internal"
)

// defines prometheus metrics
var (
	promShares = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signet_keysvc_shares_total",
		Help: "total number of decryption shares served",
	})

	promRefusals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signet_keysvc_refusals_total",
		Help: "total number of refused share requests",
	}, []string{"kind"})
)

func init() {
	signet.PromCollectors = append(signet.PromCollectors, promShares, promRefusals)
}

type shareRequestJSON struct {
	SessionKey string `json:"session_key"`
	PolicyTx   string `json:"policy_tx"`
	Blob       string `json:"blob"`
	K          string `json:"k"`
	C          string `json:"c"`
}

type pubShareJSON struct {
	I int    `json:"i"`
	V string `json:"v"`
}

type shareReplyJSON struct {
	Shares []pubShareJSON `json:"shares"`
}

type refusalJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server exposes a key-holding service over HTTP.
type Server struct {
	srv      *keysvc.Server
	router   chi.Router
	http     *http.Server
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// NewServer creates a new HTTP server around the key-holding service.
func NewServer(srv *keysvc.Server, addr string) *Server {
	registry := prometheus.NewRegistry()

	for _, collector := range signet.PromCollectors {
		err := registry.Register(collector)
		if err != nil {
			signet.Logger.Warn().Err(err).Msg("failed to register collector")
		}
	}

	server := &Server{
		srv:      srv,
		registry: registry,
		logger:   signet.Logger.With().Str("component", "keysvc-web").Str("addr", addr).Logger(),
	}

	router := chi.NewRouter()
	router.Use(server.logRequests)
	router.Post("/v1/share", server.handleShare)
	router.Get("/v1/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	server.router = router
	server.http = &http.Server{Addr: addr, Handler: router}

	return server
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Msg("serving decryption shares")

	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return xerrors.Errorf("failed to serve: %v", err)
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	m := shareRequestJSON{}

	err := json.NewDecoder(r.Body).Decode(&m)
	if err != nil {
		s.refuse(w, KindMalformed, "bad request body")
		return
	}

	req, err := decodeShareRequest(m)
	if err != nil {
		s.refuse(w, KindMalformed, err.Error())
		return
	}

	reply, err := s.srv.ProcessShareRequest(r.Context(), req)
	if err != nil {
		s.logger.Info().Err(err).Msg("share request refused")
		s.refuse(w, classify(err), err.Error())
		return
	}

	rep, err := encodeShareReply(reply)
	if err != nil {
		s.refuse(w, KindInternal, err.Error())
		return
	}

	promShares.Add(float64(len(rep.Shares)))

	w.Header().Set("Content-Type", "application/json")

	err = json.NewEncoder(w).Encode(rep)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to write reply")
	}
}

func (s *Server) refuse(w http.ResponseWriter, kind, message string) {
	promRefusals.WithLabelValues(kind).Inc()

	status := http.StatusForbidden

	switch kind {
	case KindMalformed:
		status = http.StatusBadRequest
	case KindInternal:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(refusalJSON{Kind: kind, Message: message})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to write refusal")
	}
}

// classify maps a refusal to its kind on the wire.
func classify(err error) string {
	switch {
	case xerrors.Is(err, allowlist.NewPolicyRefusedError("")):
		return KindPolicy
	case xerrors.Is(err, session.NewExpiredError()):
		return KindExpired
	case xerrors.Is(err, session.NewUnsignedError("")):
		return KindUnsigned
	case xerrors.Is(err, session.NewMalformedError("")):
		return KindMalformed
	default:
		return KindInternal
	}
}

func decodeShareRequest(m shareRequestJSON) (keysvc.ShareRequest, error) {
	sessionKey, err := base64.StdEncoding.DecodeString(m.SessionKey)
	if err != nil {
		return keysvc.ShareRequest{}, xerrors.Errorf("bad session key: %v", err)
	}

	policyTx, err := base64.StdEncoding.DecodeString(m.PolicyTx)
	if err != nil {
		return keysvc.ShareRequest{}, xerrors.Errorf("bad policy tx: %v", err)
	}

	blob, err := base64.StdEncoding.DecodeString(m.Blob)
	if err != nil {
		return keysvc.ShareRequest{}, xerrors.Errorf("bad blob: %v", err)
	}

	k, err := decodePoint(m.K)
	if err != nil {
		return keysvc.ShareRequest{}, xerrors.Errorf("bad K: %v", err)
	}

	c, err := decodePoint(m.C)
	if err != nil {
		return keysvc.ShareRequest{}, xerrors.Errorf("bad C: %v", err)
	}

	return keysvc.NewShareRequest(sessionKey, policyTx, blob, k, c), nil
}

func encodeShareRequest(req keysvc.ShareRequest) (shareRequestJSON, error) {
	k, err := encodePoint(req.GetK())
	if err != nil {
		return shareRequestJSON{}, xerrors.Errorf("failed to marshal K: %v", err)
	}

	c, err := encodePoint(req.GetC())
	if err != nil {
		return shareRequestJSON{}, xerrors.Errorf("failed to marshal C: %v", err)
	}

	return shareRequestJSON{
		SessionKey: base64.StdEncoding.EncodeToString(req.GetSessionKey()),
		PolicyTx:   base64.StdEncoding.EncodeToString(req.GetPolicyTx()),
		Blob:       base64.StdEncoding.EncodeToString(req.GetBlob()),
		K:          k,
		C:          c,
	}, nil
}

func encodeShareReply(reply keysvc.ShareReply) (shareReplyJSON, error) {
	rep := shareReplyJSON{Shares: make([]pubShareJSON, 0, len(reply.GetShares()))}

	for _, pubShare := range reply.GetShares() {
		v, err := encodePoint(pubShare.V)
		if err != nil {
			return shareReplyJSON{}, xerrors.Errorf("failed to marshal share: %v", err)
		}

		rep.Shares = append(rep.Shares, pubShareJSON{I: pubShare.I, V: v})
	}

	return rep, nil
}

func decodeShareReply(m shareReplyJSON) (keysvc.ShareReply, error) {
	shares := make([]*share.PubShare, 0, len(m.Shares))

	for _, s := range m.Shares {
		v, err := decodePoint(s.V)
		if err != nil {
			return keysvc.ShareReply{}, xerrors.Errorf("failed to unmarshal share: %v", err)
		}

		shares = append(shares, &share.PubShare{I: s.I, V: v})
	}

	return keysvc.NewShareReply(shares), nil
}

func encodePoint(point kyber.Point) (string, error) {
	if point == nil {
		return "", nil
	}

	buf, err := point.MarshalBinary()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

func decodePoint(text string) (kyber.Point, error) {
	if text == "" {
		return nil, nil
	}

	buf, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, err
	}

	point := suite.Point()

	err = point.UnmarshalBinary(buf)
	if err != nil {
		return nil, err
	}

	return point, nil
}
