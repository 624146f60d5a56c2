package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.signet.dev/signet/crypto/schnorr"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/store/kv"
)

func TestService_Submit(t *testing.T) {
	srvc, signer, sender := makeService(t)

	srvc.Set("test.Contract", testContract{})

	ctx := context.Background()

	tx, err := ledger.NewTransaction(sender, "test.Contract").Sign(signer)
	require.NoError(t, err)

	effects, err := srvc.Submit(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, tx.GetHash(), effects.GetTransactionHash())
	require.Len(t, effects.GetCreated(), 2)
	require.Empty(t, effects.GetMutated())

	// Objects are reported in creation order.
	require.Equal(t, ledger.DeriveID(tx.GetHash(), 0), effects.GetCreated()[0])
	require.Equal(t, ledger.DeriveID(tx.GetHash(), 1), effects.GetCreated()[1])

	_, err = srvc.Submit(ctx, ledger.NewTransaction(sender, "unknown"))
	require.EqualError(t, err, "unknown contract 'unknown'")

	_, err = srvc.Submit(ctx, ledger.NewTransaction(sender, "test.Contract"))
	require.EqualError(t, err, "refused transaction: transaction is not signed")

	low, err := ledger.NewTransaction(sender, "test.Contract",
		ledger.WithGasBudget(10)).Sign(signer)
	require.NoError(t, err)

	_, err = srvc.Submit(ctx, low)
	require.EqualError(t, err, "gas budget too low: got 10, need 1000")
}

func TestService_Submit_Rejected(t *testing.T) {
	srvc, signer, sender := makeService(t)

	srvc.Set("test.Contract", testContract{err: testRefusalError{}})

	tx, err := ledger.NewTransaction(sender, "test.Contract").Sign(signer)
	require.NoError(t, err)

	_, err = srvc.Submit(context.Background(), tx)
	require.EqualError(t, err, "transaction rejected: test refusal")
	require.ErrorIs(t, err, testRefusalError{})

	// A rejected transaction leaves the state untouched.
	_, err = srvc.GetObject(context.Background(), ledger.DeriveID(tx.GetHash(), 0))
	require.ErrorIs(t, err, ledger.NewObjectNotFoundError(ledger.DeriveID(tx.GetHash(), 0)))
}

func TestService_Submit_Mutated(t *testing.T) {
	srvc, signer, sender := makeService(t)

	srvc.Set("test.Contract", testContract{})

	ctx := context.Background()

	tx, err := ledger.NewTransaction(sender, "test.Contract").Sign(signer)
	require.NoError(t, err)

	effects, err := srvc.Submit(ctx, tx)
	require.NoError(t, err)

	shared := effects.GetCreated()[0]

	// A second transaction touching the same object reports it as mutated.
	again, err := ledger.NewTransaction(sender, "test.Contract",
		ledger.WithArg("target", shared.Bytes())).Sign(signer)
	require.NoError(t, err)

	effects, err = srvc.Submit(ctx, again)
	require.NoError(t, err)
	require.Equal(t, []ledger.ObjectID{shared}, effects.GetMutated())
}

func TestService_DryRun(t *testing.T) {
	srvc, _, sender := makeService(t)

	srvc.Set("test.Contract", testContract{})

	ctx := context.Background()

	// No signature is required for a dry run.
	tx := ledger.NewTransaction(sender, "test.Contract")

	err := srvc.DryRun(ctx, tx)
	require.NoError(t, err)

	// The writes of the dry run are discarded.
	_, err = srvc.GetObject(ctx, ledger.DeriveID(tx.GetHash(), 0))
	require.ErrorIs(t, err, ledger.NewObjectNotFoundError(ledger.DeriveID(tx.GetHash(), 0)))

	err = srvc.DryRun(ctx, ledger.NewTransaction(sender, "unknown"))
	require.EqualError(t, err, "unknown contract 'unknown'")

	srvc.Set("test.Refusing", testContract{err: testRefusalError{}})

	err = srvc.DryRun(ctx, ledger.NewTransaction(sender, "test.Refusing"))
	require.EqualError(t, err, "policy check failed: test refusal")
	require.ErrorIs(t, err, testRefusalError{})
}

func TestService_Reads(t *testing.T) {
	srvc, signer, sender := makeService(t)

	srvc.Set("test.Contract", testContract{})

	ctx := context.Background()

	tx, err := ledger.NewTransaction(sender, "test.Contract").Sign(signer)
	require.NoError(t, err)

	effects, err := srvc.Submit(ctx, tx)
	require.NoError(t, err)

	shared := effects.GetCreated()[0]
	owned := effects.GetCreated()[1]

	obj, err := srvc.GetObject(ctx, shared)
	require.NoError(t, err)
	require.Equal(t, "test.Shared", obj.GetType())
	require.True(t, obj.GetOwner().IsZero())

	value, err := srvc.GetField(ctx, shared, []byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), value)

	_, err = srvc.GetField(ctx, shared, []byte("gamma"))
	require.ErrorIs(t, err, ledger.NewFieldAbsentError(shared, []byte("gamma")))

	// Keys come back in lexicographic order.
	keys, err := srvc.ListFields(ctx, shared)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("alpha"), []byte("beta")}, keys)

	objs, err := srvc.OwnedObjects(ctx, sender, "test.Owned")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, owned, objs[0].GetID())

	objs, err = srvc.OwnedObjects(ctx, sender, "test.Other")
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = srvc.OwnedObjects(ctx, ledger.Address{0xff}, "test.Owned")
	require.NoError(t, err)
	require.Empty(t, objs)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeService(t *testing.T) (*Service, schnorr.Signer, ledger.Address) {
	srvc, err := NewService(kv.NewInMemory())
	require.NoError(t, err)

	signer := schnorr.NewSigner()

	sender, err := ledger.NewAddressFromPublicKey(signer.GetPublicKey())
	require.NoError(t, err)

	return srvc, signer, sender
}

type testRefusalError struct{}

func (testRefusalError) Error() string {
	return "test refusal"
}

func (testRefusalError) Is(other error) bool {
	_, ok := other.(testRefusalError)
	return ok
}

// testContract creates a shared object with two dynamic fields and an object
// owned by the sender. When the target argument is set, it rewrites that
// object instead.
//
// - implements ledger.Contract
type testContract struct {
	err error
}

func (c testContract) Execute(snap ledger.Snapshot, step ledger.Step) error {
	if c.err != nil {
		return c.err
	}

	tx := step.Current

	target := tx.GetArg("target")
	if len(target) > 0 {
		id := ledger.ObjectID{}
		copy(id[:], target)

		return ledger.StoreObject(snap,
			ledger.NewObject(id, "test.Shared", ledger.Address{}, []byte("rewritten")))
	}

	shared := ledger.DeriveID(tx.GetHash(), 0)

	err := ledger.StoreObject(snap,
		ledger.NewObject(shared, "test.Shared", ledger.Address{}, []byte("shared")))
	if err != nil {
		return err
	}

	err = ledger.SetFieldValue(snap, shared, []byte("alpha"), []byte("one"))
	if err != nil {
		return err
	}

	err = ledger.SetFieldValue(snap, shared, []byte("beta"), []byte("two"))
	if err != nil {
		return err
	}

	owned := ledger.DeriveID(tx.GetHash(), 1)

	err = ledger.StoreObject(snap,
		ledger.NewObject(owned, "test.Owned", tx.GetSender(), []byte("owned")))
	if err != nil {
		return err
	}

	return nil
}
