// Package node implements an in-process ledger node.
//
// The node applies submitted transactions deterministically and atomically:
// each transaction is executed by the registered contract inside a single
// writable transaction of the underlying key/value store, so either every
// write lands or none does. Conflict ordering is delegated to the store.
package node

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/store/kv"
)

// execGasCost is the flat resource cost charged per executed transaction.
const execGasCost = 1000

var stateBucket = []byte("ledger-state")

// Service is a ledger node backed by a key/value store.
//
// - implements ledger.Client
type Service struct {
	db        kv.DB
	contracts map[string]ledger.Contract
	logger    zerolog.Logger
}

// NewService creates a new ledger node on top of the database.
func NewService(db kv.DB) (*Service, error) {
	// Make sure the state bucket exists so that read-only accesses work on
	// a fresh database.
	err := db.Update(stateBucket, func(kv.Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to initialize state: %v", err)
	}

	srvc := &Service{
		db:        db,
		contracts: make(map[string]ledger.Contract),
		logger:    signet.Logger.With().Str("component", "ledger-node").Logger(),
	}

	return srvc, nil
}

// Set registers the contract under the given name. It must be called before
// transactions for that contract are submitted.
func (s *Service) Set(name string, contract ledger.Contract) {
	s.contracts[name] = contract
}

// Submit implements ledger.Client. It verifies the transaction, executes the
// target contract atomically and returns the effects. A rejected transaction
// leaves the state untouched and the rejection cause is returned, wrapped so
// that the contract error kind is preserved.
func (s *Service) Submit(ctx context.Context, tx ledger.Transaction) (ledger.Effects, error) {
	contract, found := s.contracts[tx.GetContract()]
	if !found {
		return ledger.Effects{}, xerrors.Errorf("unknown contract '%s'", tx.GetContract())
	}

	err := tx.Verify()
	if err != nil {
		return ledger.Effects{}, xerrors.Errorf("refused transaction: %v", err)
	}

	if tx.GetGasBudget() < execGasCost {
		return ledger.Effects{}, xerrors.Errorf("gas budget too low: got %d, need %d",
			tx.GetGasBudget(), execGasCost)
	}

	var created, mutated []ledger.ObjectID

	err = s.db.Update(stateBucket, func(bucket kv.Bucket) error {
		snap := newSnapshot(bucket)

		err := contract.Execute(snap, ledger.Step{Current: tx})
		if err != nil {
			return xerrors.Errorf("transaction rejected: %w", err)
		}

		created, mutated = snap.diff()

		return nil
	})
	if err != nil {
		return ledger.Effects{}, err
	}

	s.logger.Info().
		Str("contract", tx.GetContract()).
		Str("sender", tx.GetSender().String()).
		Hex("tx", tx.GetHash()).
		Msg("transaction accepted")

	return ledger.NewEffects(tx.GetHash(), created, mutated, execGasCost), nil
}

// DryRun implements ledger.Client. It executes the transaction against an
// overlay of the current state and discards every write. No signature is
// required, which makes it suitable for policy-check payloads evaluated by
// the key-holding services.
func (s *Service) DryRun(ctx context.Context, tx ledger.Transaction) error {
	contract, found := s.contracts[tx.GetContract()]
	if !found {
		return xerrors.Errorf("unknown contract '%s'", tx.GetContract())
	}

	return s.db.View(stateBucket, func(bucket kv.Bucket) error {
		snap := newOverlay(bucket)

		err := contract.Execute(snap, ledger.Step{Current: tx})
		if err != nil {
			return xerrors.Errorf("policy check failed: %w", err)
		}

		return nil
	})
}

// GetObject implements ledger.Client. It returns the object with its full
// content.
func (s *Service) GetObject(ctx context.Context, id ledger.ObjectID) (ledger.Object, error) {
	var obj ledger.Object

	err := s.db.View(stateBucket, func(bucket kv.Bucket) error {
		var err error
		obj, err = ledger.LoadObject(readSnapshot{bucket: bucket}, id)
		return err
	})
	if err != nil {
		return ledger.Object{}, err
	}

	return obj, nil
}

// GetField implements ledger.Client. It resolves the keyed lookup
// (parent, key), reporting absence with a ledger.FieldAbsentError.
func (s *Service) GetField(ctx context.Context, parent ledger.ObjectID, key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(stateBucket, func(bucket kv.Bucket) error {
		var err error
		value, err = ledger.GetFieldValue(readSnapshot{bucket: bucket}, parent, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// ListFields implements ledger.Client. It returns the keys of the dynamic
// fields attached to the parent structure.
func (s *Service) ListFields(ctx context.Context, parent ledger.ObjectID) ([][]byte, error) {
	prefix := ledger.FieldPrefix(parent)

	var keys [][]byte

	err := s.db.View(stateBucket, func(bucket kv.Bucket) error {
		return bucket.Scan(prefix, func(k, v []byte) error {
			keys = append(keys, append([]byte{}, k[len(prefix):]...))
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan fields: %v", err)
	}

	return keys, nil
}

// OwnedObjects implements ledger.Client. It returns the objects of the given
// type held by the owner.
func (s *Service) OwnedObjects(ctx context.Context, owner ledger.Address, typ string) ([]ledger.Object, error) {
	prefix := ledger.OwnerPrefix(owner)

	var objs []ledger.Object

	err := s.db.View(stateBucket, func(bucket kv.Bucket) error {
		snap := readSnapshot{bucket: bucket}

		return bucket.Scan(prefix, func(k, v []byte) error {
			if string(v) != typ {
				return nil
			}

			id := ledger.ObjectID{}
			copy(id[:], k[len(prefix):])

			obj, err := ledger.LoadObject(snap, id)
			if err != nil {
				return xerrors.Errorf("failed to load object: %v", err)
			}

			objs = append(objs, obj)

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan owned objects: %v", err)
	}

	return objs, nil
}
