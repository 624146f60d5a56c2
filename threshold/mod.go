// Package threshold implements the client driving the threshold decryption
// of encrypted documents.
//
// A document is sealed once to the collective public key of the committee
// and stored content-addressed. To open it, the client presents a signed
// session certificate to every key-holding server, collects partial
// decryptions until their weight reaches the committee threshold, and
// recovers the encryption seed. Servers that lag behind once the threshold
// is met are abandoned, not awaited.
package threshold

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/blob"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/internal/tracing"
	"go.signet.dev/signet/keysvc"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/session"
)

var suite = suites.MustFind("Ed25519")

// ShareClient requests partial decryptions from one key-holding server.
//
// - implemented by keysvc.Server and keysvc/web.Client
type ShareClient interface {
	// GetWeight returns the decryption weight of the server.
	GetWeight() int

	// ProcessShareRequest returns the partial decryptions of the server for
	// the request, or a refusal.
	ProcessShareRequest(ctx context.Context, req keysvc.ShareRequest) (keysvc.ShareReply, error)
}

// DecryptResult is the outcome of the decryption of one document.
type DecryptResult struct {
	data []byte
	err  error
}

// GetData returns the plaintext of the document when the decryption
// succeeded.
func (r DecryptResult) GetData() []byte {
	return append([]byte{}, r.data...)
}

// GetError returns the reason the decryption failed, or nil.
func (r DecryptResult) GetError() error {
	return r.err
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTracer sets the tracer of the client.
func WithTracer(tracer opentracing.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// Client fetches sealed documents and decrypts them with the committee.
type Client struct {
	servers   []ShareClient
	threshold int
	total     int
	blobs     blob.Store
	tracer    opentracing.Tracer
	logger    zerolog.Logger
}

// NewClient creates a new threshold decryption client over the servers. The
// threshold is the share weight required by the committee.
func NewClient(servers []ShareClient, threshold int, blobs blob.Store, opts ...ClientOption) (*Client, error) {
	total := 0
	for _, srv := range servers {
		total += srv.GetWeight()
	}

	if threshold <= 0 || threshold > total {
		return nil, xerrors.Errorf("invalid threshold %d for total weight %d",
			threshold, total)
	}

	client := &Client{
		servers:   servers,
		threshold: threshold,
		total:     total,
		blobs:     blobs,
		tracer:    opentracing.NoopTracer{},
		logger:    signet.Logger.With().Str("component", "threshold").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// envelope is the stored form of a sealed document: the ElGamal ciphertext
// of the encryption seed and the AEAD ciphertext of the payload.
type envelope struct {
	K          string `json:"k"`
	C          string `json:"c"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts the plaintext to the collective public key and stores the
// sealed envelope. It returns the content address of the envelope, which is
// the identifier to publish on the access list.
func (c *Client) Seal(pubKey kyber.Point, plaintext []byte) (blob.ID, error) {
	seed := make([]byte, suite.Point().EmbedLen())
	random.Bytes(seed, random.New())

	// Embed the seed into a curve point and ElGamal-encrypt it to (K, C).
	M := suite.Point().Embed(seed, random.New())
	k := suite.Scalar().Pick(random.New())
	K := suite.Point().Mul(k, nil)
	S := suite.Point().Mul(k, pubKey)
	C := suite.Point().Add(S, M)

	kBuf, err := K.MarshalBinary()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal K: %v", err)
	}

	cBuf, err := C.MarshalBinary()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal C: %v", err)
	}

	aead, err := newAEAD(seed)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())

	_, err = rand.Read(nonce)
	if err != nil {
		return "", xerrors.Errorf("failed to make nonce: %v", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	data, err := json.Marshal(envelope{
		K:          base64.StdEncoding.EncodeToString(kBuf),
		C:          base64.StdEncoding.EncodeToString(cBuf),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", xerrors.Errorf("failed to marshal envelope: %v", err)
	}

	id, err := c.blobs.Put(data)
	if err != nil {
		return "", xerrors.Errorf("failed to store envelope: %v", err)
	}

	return id, nil
}

// FetchAndDecrypt decrypts the documents authorized by the session
// certificate under the access list. Each document gets its own result: a
// failure on one never aborts the others. The certificate is checked up
// front so an expired or unsigned session fails fast.
func (c *Client) FetchAndDecrypt(ctx context.Context, ids []blob.ID, cert session.SessionKey,
	list ledger.ObjectID) (map[blob.ID]DecryptResult, error) {

	if !cert.IsSigned() {
		return nil, session.NewUnsignedError("refusing to fetch")
	}

	if cert.IsExpired(time.Now()) {
		return nil, session.NewExpiredError()
	}

	certBytes, err := cert.Export()
	if err != nil {
		return nil, xerrors.Errorf("failed to export session key: %v", err)
	}

	results := make(map[blob.ID]DecryptResult)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		wg.Add(1)

		go func(id blob.ID) {
			defer wg.Done()

			data, err := c.decryptOne(ctx, id, certBytes, cert.GetAddress(), list)

			mu.Lock()
			results[id] = DecryptResult{data: data, err: err}
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	return results, nil
}

func (c *Client) decryptOne(ctx context.Context, id blob.ID, certBytes []byte,
	sender ledger.Address, list ledger.ObjectID) ([]byte, error) {

	ctx = context.WithValue(ctx, tracing.BlobKey, id.String())

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "decrypt")
	span.SetTag(tracing.BlobTag, blobFromContext(ctx))
	defer span.Finish()

	data, err := c.blobs.Get(id)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch envelope: %w", err)
	}

	env := envelope{}

	err = json.Unmarshal(data, &env)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal envelope: %v", err)
	}

	K, err := decodePoint(env.K)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode K: %v", err)
	}

	C, err := decodePoint(env.C)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode C: %v", err)
	}

	tx := ledger.NewTransaction(sender, allowlist.ContractName,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdApprove)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
		ledger.WithArg(allowlist.BlobArg, id.Bytes()),
	)

	txBytes, err := tx.Serialize()
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize policy tx: %v", err)
	}

	req := keysvc.NewShareRequest(certBytes, txBytes, id.Bytes(), K, C)

	seed, err := c.collectAndRecover(ctx, req)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(seed)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode nonce: %v", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode ciphertext: %v", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to open envelope: %v", err)
	}

	return plaintext, nil
}

type shareResult struct {
	weight int
	shares []*share.PubShare
	err    error
}

// collectAndRecover fans the request out to every server and recovers the
// seed point as soon as the collected weight reaches the threshold. It gives
// up as soon as the threshold is provably unreachable, and stragglers past
// the decision are abandoned.
func (c *Client) collectAndRecover(ctx context.Context, req keysvc.ShareRequest) ([]byte, error) {
	// Buffered so abandoned servers never block on their send.
	ch := make(chan shareResult, len(c.servers))

	for _, srv := range c.servers {
		go func(srv ShareClient) {
			reply, err := srv.ProcessShareRequest(ctx, req)

			ch <- shareResult{weight: srv.GetWeight(), shares: reply.GetShares(), err: err}
		}(srv)
	}

	collected := []*share.PubShare{}
	remaining := c.total

	var refusal error

	for i := 0; i < len(c.servers); i++ {
		res := <-ch
		remaining -= res.weight

		if res.err != nil {
			c.logger.Debug().Err(res.err).Msg("server refused to share")
			refusal = res.err
		} else {
			collected = append(collected, res.shares...)
		}

		if len(collected) >= c.threshold {
			break
		}

		if len(collected)+remaining < c.threshold {
			break
		}
	}

	if len(collected) < c.threshold {
		err := NewThresholdNotMetError(len(collected), c.threshold)
		if refusal != nil {
			return nil, xerrors.Errorf("last refusal '%v': %w", refusal, err)
		}

		return nil, err
	}

	recovered, err := share.RecoverCommit(suite, collected, c.threshold, c.total)
	if err != nil {
		return nil, xerrors.Errorf("failed to recover commit: %v", err)
	}

	seed, err := recovered.Data()
	if err != nil {
		return nil, xerrors.Errorf("failed to extract seed: %v", err)
	}

	return seed, nil
}

func newAEAD(seed []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(seed)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, xerrors.Errorf("failed to make cipher: %v", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Errorf("failed to make aead: %v", err)
	}

	return aead, nil
}

func blobFromContext(ctx context.Context) string {
	id, ok := ctx.Value(tracing.BlobKey).(string)
	if !ok {
		return tracing.UndefinedBlob
	}

	return id
}

func decodePoint(text string) (kyber.Point, error) {
	buf, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode point: %v", err)
	}

	point := suite.Point()

	err = point.UnmarshalBinary(buf)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal point: %v", err)
	}

	return point, nil
}
