package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/random"

	"go.signet.dev/signet/accesslist"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/crypto/schnorr"
	"go.signet.dev/signet/keysvc"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/ledger/node"
	"go.signet.dev/signet/session"
	"go.signet.dev/signet/store/kv"
)

func TestClientServer_RoundTrip(t *testing.T) {
	env := makeEnv(t)

	ts := httptest.NewServer(NewServer(env.server, "").Handler())
	defer ts.Close()

	client := NewClient(ts.URL, env.server.GetWeight())
	require.Equal(t, 2, client.GetWeight())

	testSuite := suites.MustFind("Ed25519")

	// ElGamal-encrypt a seed point to the collective public key.
	M := testSuite.Point().Embed([]byte("secret seed"), random.New())
	k := testSuite.Scalar().Pick(random.New())
	K := testSuite.Point().Mul(k, nil)
	C := testSuite.Point().Add(testSuite.Point().Mul(k, env.committee.GetPublicKey()), M)

	req := keysvc.NewShareRequest(env.cert, env.policyTx, env.blobID, K, C)

	reply, err := client.ProcessShareRequest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, reply.GetShares(), 2)

	recovered, err := share.RecoverCommit(testSuite, reply.GetShares(), 2, 2)
	require.NoError(t, err)

	data, err := recovered.Data()
	require.NoError(t, err)
	require.Equal(t, []byte("secret seed"), data)
}

func TestClientServer_Refusals(t *testing.T) {
	env := makeEnv(t)

	ts := httptest.NewServer(NewServer(env.server, "").Handler())
	defer ts.Close()

	client := NewClient(ts.URL, env.server.GetWeight())

	ctx := context.Background()

	// A garbage certificate is a malformed refusal.
	_, err := client.ProcessShareRequest(ctx,
		keysvc.NewShareRequest([]byte("junk"), env.policyTx, env.blobID, nil, nil))
	require.ErrorIs(t, err, session.NewMalformedError(""))

	// A stranger gets a policy refusal.
	strangerSigner := schnorr.NewSigner()
	strangerAddr, err := ledger.NewAddressFromPublicKey(strangerSigner.GetPublicKey())
	require.NoError(t, err)

	strangerCert := makeCert(t, strangerSigner, strangerAddr, time.Hour)
	strangerTx := makePolicyTx(t, strangerAddr, env.list, env.blobID)

	_, err = client.ProcessShareRequest(ctx,
		keysvc.NewShareRequest(strangerCert, strangerTx, env.blobID, nil, nil))
	require.ErrorIs(t, err, allowlist.NewPolicyRefusedError(""))

	// An expired certificate is reported as such.
	expired := makeCert(t, env.member, env.memberAddr, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, err = client.ProcessShareRequest(ctx,
		keysvc.NewShareRequest(expired, env.policyTx, env.blobID, nil, nil))
	require.ErrorIs(t, err, session.NewExpiredError())

	// An unsigned certificate is refused before any policy check.
	unsigned, err := session.New(env.memberAddr, allowlist.ContractName, time.Hour).Export()
	require.NoError(t, err)

	_, err = client.ProcessShareRequest(ctx,
		keysvc.NewShareRequest(unsigned, env.policyTx, env.blobID, nil, nil))
	require.ErrorIs(t, err, session.NewUnsignedError(""))
}

func TestClient_TransportFault(t *testing.T) {
	env := makeEnv(t)

	ts := httptest.NewServer(NewServer(env.server, "").Handler())
	ts.Close()

	client := NewClient(ts.URL, env.server.GetWeight())

	_, err := client.ProcessShareRequest(context.Background(),
		keysvc.NewShareRequest(env.cert, env.policyTx, env.blobID, nil, nil))
	require.ErrorIs(t, err, NewTransientError(""))
}

func TestServer_BadBody(t *testing.T) {
	env := makeEnv(t)

	ts := httptest.NewServer(NewServer(env.server, "").Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/share", "application/json", strings.NewReader("junk"))
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	env := makeEnv(t)

	ts := httptest.NewServer(NewServer(env.server, "").Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/metrics")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "signet_keysvc")
}

// -----------------------------------------------------------------------------
// Utility functions

type testEnv struct {
	committee  keysvc.Committee
	server     *keysvc.Server
	member     schnorr.Signer
	memberAddr ledger.Address
	list       ledger.ObjectID
	blobID     []byte
	cert       []byte
	policyTx   []byte
}

// makeEnv spins up a ledger node with one list, one member and one published
// blob, behind a single key server of weight 2.
func makeEnv(t *testing.T) *testEnv {
	srvc, err := node.NewService(kv.NewInMemory())
	require.NoError(t, err)

	srvc.Set(allowlist.ContractName, allowlist.NewContract())

	ctx := context.Background()

	owner, err := accesslist.NewClient(srvc, schnorr.NewSigner())
	require.NoError(t, err)

	member := schnorr.NewSigner()
	memberAddr, err := ledger.NewAddressFromPublicKey(member.GetPublicKey())
	require.NoError(t, err)

	list, cap, err := owner.Create(ctx, "docs")
	require.NoError(t, err)

	err = owner.Add(ctx, list, cap, memberAddr)
	require.NoError(t, err)

	err = owner.Publish(ctx, list, cap, "blob-id")
	require.NoError(t, err)

	committee, err := keysvc.NewCommittee([]int{2}, 2)
	require.NoError(t, err)

	blobID := []byte("blob-id")

	return &testEnv{
		committee:  committee,
		server:     keysvc.NewServer(committee.GetShares(0), srvc),
		member:     member,
		memberAddr: memberAddr,
		list:       list,
		blobID:     blobID,
		cert:       makeCert(t, member, memberAddr, time.Hour),
		policyTx:   makePolicyTx(t, memberAddr, list, blobID),
	}
}

func makeCert(t *testing.T, signer schnorr.Signer, addr ledger.Address, ttl time.Duration) []byte {
	key := session.New(addr, allowlist.ContractName, ttl)

	sig, err := signer.Sign(key.GetPersonalMessage())
	require.NoError(t, err)

	signed, err := key.AttachSignature(sig, signer.GetPublicKey())
	require.NoError(t, err)

	data, err := signed.Export()
	require.NoError(t, err)

	return data
}

func makePolicyTx(t *testing.T, sender ledger.Address, list ledger.ObjectID, blob []byte) []byte {
	tx := ledger.NewTransaction(sender, allowlist.ContractName,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdApprove)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
		ledger.WithArg(allowlist.BlobArg, blob),
	)

	data, err := tx.Serialize()
	require.NoError(t, err)

	return data
}
