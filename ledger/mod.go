// Package ledger defines the abstraction of the ledger authority that holds
// the access lists.
//
// The ledger is treated as an external authority: it deterministically
// applies capability checks and persists state once a submitted transaction
// is accepted. The package defines the identities, object references,
// transactions and the client interface to read and mutate the state. An
// in-process implementation lives in the node subpackage.
package ledger

import "context"

// Client provides the primitives to read the ledger state and to submit
// transactions to it.
type Client interface {
	// GetObject returns the object with its full content, or an
	// ObjectNotFoundError.
	GetObject(ctx context.Context, id ObjectID) (Object, error)

	// GetField resolves the keyed-lookup primitive
	// (parent structure, key) -> value. Absence of the entry is reported
	// with a FieldAbsentError.
	GetField(ctx context.Context, parent ObjectID, key []byte) ([]byte, error)

	// ListFields returns the keys of every dynamic field attached to the
	// parent structure, in lexicographic order.
	ListFields(ctx context.Context, parent ObjectID) ([][]byte, error)

	// OwnedObjects returns the objects of the given type held by the owner.
	OwnedObjects(ctx context.Context, owner Address, typ string) ([]Object, error)

	// Submit sends the signed transaction to the ledger and returns the
	// resulting effects once it has been applied. A rejected transaction
	// changes nothing and the rejection cause is returned.
	Submit(ctx context.Context, tx Transaction) (Effects, error)

	// DryRun evaluates the transaction against the current state without
	// applying it. It is the policy-check primitive used by the key-holding
	// services and does not require a signature.
	DryRun(ctx context.Context, tx Transaction) error
}

// Snapshot is the contract-facing view of the ledger state. A missing key
// resolves to a nil value without error.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Step contains the transaction being executed by a contract.
type Step struct {
	Current Transaction
}

// Contract is the interface to implement for a program executed by the
// ledger.
type Contract interface {
	// Execute applies the transaction of the step to the snapshot. Any
	// returned error rejects the transaction and discards the writes.
	Execute(snap Snapshot, step Step) error
}
