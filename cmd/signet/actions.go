package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"go.signet.dev/signet/accesslist"
	"go.signet.dev/signet/blob"
	"go.signet.dev/signet/blob/kvstore"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/crypto/schnorr"
	"go.signet.dev/signet/internal/tracing"
	"go.signet.dev/signet/keysvc"
	"go.signet.dev/signet/keysvc/web"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/ledger/node"
	"go.signet.dev/signet/session"
	"go.signet.dev/signet/store/kv"
	"go.signet.dev/signet/threshold"
)

// defaultSessionTTL is the lifetime of session keys minted by the open
// command when no live one is stored.
const defaultSessionTTL = time.Hour

func keygenAction(c *cli.Context) error {
	signer := schnorr.NewSigner()

	priv, err := signer.GetPrivateKey()
	if err != nil {
		return xerrors.Errorf("failed to marshal private key: %v", err)
	}

	path := c.String("wallet")

	err = os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(priv)), 0600)
	if err != nil {
		return xerrors.Errorf("failed to write wallet: %v", err)
	}

	addr, err := ledger.NewAddressFromPublicKey(signer.GetPublicKey())
	if err != nil {
		return xerrors.Errorf("failed to derive address: %v", err)
	}

	fmt.Fprintln(c.App.Writer, addr)

	return nil
}

func setupAction(c *cli.Context) error {
	specs := c.StringSlice("server")

	weights := make([]int, len(specs))
	addrs := make([]string, len(specs))

	for i, spec := range specs {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return xerrors.Errorf("malformed server '%s': expected <weight>:<addr>", spec)
		}

		weight, err := strconv.Atoi(parts[0])
		if err != nil {
			return xerrors.Errorf("malformed server '%s': %v", spec, err)
		}

		weights[i] = weight
		addrs[i] = parts[1]
	}

	committee, err := keysvc.NewCommittee(weights, c.Int("threshold"))
	if err != nil {
		return err
	}

	config, err := keysvc.NewConfig(committee, addrs)
	if err != nil {
		return err
	}

	data, err := config.Export()
	if err != nil {
		return err
	}

	out := c.String("out")

	err = os.WriteFile(filepath.Join(out, "committee.yml"), data, 0644)
	if err != nil {
		return xerrors.Errorf("failed to write config: %v", err)
	}

	for i := range specs {
		data, err := committee.ExportShares(i)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("server-%d.yml", i)

		err = os.WriteFile(filepath.Join(out, name), data, 0600)
		if err != nil {
			return xerrors.Errorf("failed to write shares: %v", err)
		}
	}

	fmt.Fprintf(c.App.Writer, "committee of %d servers ready, threshold %d\n",
		len(specs), committee.GetThreshold())

	return nil
}

func createAction(c *cli.Context) error {
	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	list, cap, err := client.Create(c.Context, c.String("name"))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "list %v\ncapability %v\n", list, cap)

	return nil
}

func addAction(c *cli.Context) error {
	return withCapability(c, func(ctx context.Context, client *accesslist.Client,
		list, cap ledger.ObjectID) error {

		member, err := ledger.ParseAddress(c.String("member"))
		if err != nil {
			return err
		}

		return client.Add(ctx, list, cap, member)
	})
}

func removeAction(c *cli.Context) error {
	return withCapability(c, func(ctx context.Context, client *accesslist.Client,
		list, cap ledger.ObjectID) error {

		member, err := ledger.ParseAddress(c.String("member"))
		if err != nil {
			return err
		}

		return client.Remove(ctx, list, cap, member)
	})
}

func signAction(c *cli.Context) error {
	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	list, err := ledger.ParseObjectID(c.String("list"))
	if err != nil {
		return err
	}

	return accesslist.NewTracker(client).RecordApproval(c.Context, list)
}

func statusAction(c *cli.Context) error {
	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	list, err := ledger.ParseObjectID(c.String("list"))
	if err != nil {
		return err
	}

	snap, err := client.Snapshot(c.Context, list)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s\n", snap.GetName())

	for _, member := range snap.GetMembers() {
		mark := ""
		if snap.HasApproved(member) {
			mark = " signed"
		}

		fmt.Fprintf(c.App.Writer, "  %v%s\n", member, mark)
	}

	return nil
}

func sealAction(c *cli.Context) error {
	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	plaintext, err := os.ReadFile(c.String("in"))
	if err != nil {
		return xerrors.Errorf("failed to read document: %v", err)
	}

	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	pubKey, err := config.GetPublicKey()
	if err != nil {
		return err
	}

	tclient, err := makeThresholdClient(config, db)
	if err != nil {
		return err
	}

	id, err := tclient.Seal(pubKey, plaintext)
	if err != nil {
		return err
	}

	list, err := ledger.ParseObjectID(c.String("list"))
	if err != nil {
		return err
	}

	cap, found, err := client.FindCapability(c.Context, list)
	if err != nil {
		return err
	}

	if !found {
		return xerrors.Errorf("wallet holds no capability for list %v", list)
	}

	err = client.Publish(c.Context, list, cap, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, id)

	return nil
}

func openAction(c *cli.Context) error {
	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	tracer, err := tracing.GetTracerForAddr("signet-cli")
	if err != nil {
		return err
	}

	defer tracing.CloseAll()

	tclient, err := makeThresholdClient(config, db, threshold.WithTracer(tracer))
	if err != nil {
		return err
	}

	list, err := ledger.ParseObjectID(c.String("list"))
	if err != nil {
		return err
	}

	cert, err := loadSessionKey(c, db, client)
	if err != nil {
		return err
	}

	id := blob.ID(c.String("blob"))

	results, err := tclient.FetchAndDecrypt(c.Context, []blob.ID{id}, cert, list)
	if err != nil {
		return err
	}

	err = results[id].GetError()
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "-" {
		_, err = c.App.Writer.Write(results[id].GetData())
		return err
	}

	err = os.WriteFile(out, results[id].GetData(), 0644)
	if err != nil {
		return xerrors.Errorf("failed to write document: %v", err)
	}

	return nil
}

func serveAction(c *cli.Context) error {
	data, err := os.ReadFile(c.String("shares"))
	if err != nil {
		return xerrors.Errorf("failed to read shares: %v", err)
	}

	shares, err := keysvc.ImportShares(data)
	if err != nil {
		return err
	}

	db, err := kv.New(c.String("db"))
	if err != nil {
		return err
	}

	defer db.Close()

	srvc, err := node.NewService(db)
	if err != nil {
		return err
	}

	srvc.Set(allowlist.ContractName, allowlist.NewContract())

	server := web.NewServer(keysvc.NewServer(shares, srvc), c.String("addr"))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		server.Shutdown(ctx)
	}()

	return server.ListenAndServe()
}

// -----------------------------------------------------------------------------
// Utility functions

func loadWallet(c *cli.Context) (schnorr.Signer, error) {
	return loadWalletFile(c.String("wallet"))
}

func loadWalletFile(path string) (schnorr.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schnorr.Signer{}, xerrors.Errorf("failed to read wallet: %v", err)
	}

	priv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return schnorr.Signer{}, xerrors.Errorf("failed to decode wallet: %v", err)
	}

	signer, err := schnorr.NewSignerFromBytes(priv)
	if err != nil {
		return schnorr.Signer{}, xerrors.Errorf("failed to restore wallet: %v", err)
	}

	return signer, nil
}

func openEnv(c *cli.Context) (kv.DB, *accesslist.Client, error) {
	signer, err := loadWallet(c)
	if err != nil {
		return nil, nil, err
	}

	db, err := kv.New(c.String("db"))
	if err != nil {
		return nil, nil, err
	}

	srvc, err := node.NewService(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	srvc.Set(allowlist.ContractName, allowlist.NewContract())

	client, err := accesslist.NewClient(srvc, signer)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, client, nil
}

func withCapability(c *cli.Context, fn func(context.Context, *accesslist.Client,
	ledger.ObjectID, ledger.ObjectID) error) error {

	db, client, err := openEnv(c)
	if err != nil {
		return err
	}

	defer db.Close()

	list, err := ledger.ParseObjectID(c.String("list"))
	if err != nil {
		return err
	}

	cap, found, err := client.FindCapability(c.Context, list)
	if err != nil {
		return err
	}

	if !found {
		return xerrors.Errorf("wallet holds no capability for list %v", list)
	}

	return fn(c.Context, client, list, cap)
}

func loadConfig(c *cli.Context) (keysvc.Config, error) {
	data, err := os.ReadFile(c.String("config"))
	if err != nil {
		return keysvc.Config{}, xerrors.Errorf("failed to read config: %v", err)
	}

	return keysvc.ImportConfig(data)
}

func makeThresholdClient(config keysvc.Config, db kv.DB,
	opts ...threshold.ClientOption) (*threshold.Client, error) {

	servers := make([]threshold.ShareClient, len(config.Servers))
	for i, srv := range config.Servers {
		servers[i] = web.NewClient(srv.Addr, srv.Weight)
	}

	return threshold.NewClient(servers, config.Threshold, kvstore.NewStore(db), opts...)
}

// loadSessionKey returns the live session key of the wallet, minting and
// signing a fresh one when none is stored.
func loadSessionKey(c *cli.Context, db kv.DB, client *accesslist.Client) (session.SessionKey, error) {
	sessions := session.NewStore(db)

	key, found, err := sessions.Load(client.GetAddress(), allowlist.ContractName)
	if err != nil {
		return session.SessionKey{}, err
	}

	if found {
		return key, nil
	}

	key = session.New(client.GetAddress(), allowlist.ContractName, c.Duration("ttl"))

	signer, err := loadWallet(c)
	if err != nil {
		return session.SessionKey{}, err
	}

	sig, err := signer.Sign(key.GetPersonalMessage())
	if err != nil {
		return session.SessionKey{}, xerrors.Errorf("failed to sign session key: %v", err)
	}

	key, err = key.AttachSignature(sig, signer.GetPublicKey())
	if err != nil {
		return session.SessionKey{}, err
	}

	err = sessions.Save(key)
	if err != nil {
		return session.SessionKey{}, err
	}

	return key, nil
}
