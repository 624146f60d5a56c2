package node

import (
	"golang.org/x/xerrors"

	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/store/kv"
)

var errReadOnly = xerrors.New("read-only snapshot")

// snapshot adapts a writable kv bucket to the contract-facing view of the
// state. It records which object keys are written for the first time so the
// node can report created objects in the effects.
//
// - implements ledger.Snapshot
type snapshot struct {
	bucket  kv.Bucket
	seen    map[ledger.ObjectID]struct{}
	created []ledger.ObjectID
	mutated []ledger.ObjectID
}

func newSnapshot(bucket kv.Bucket) *snapshot {
	return &snapshot{
		bucket: bucket,
		seen:   make(map[ledger.ObjectID]struct{}),
	}
}

// Get implements ledger.Snapshot. A missing key resolves to a nil value.
func (s *snapshot) Get(key []byte) ([]byte, error) {
	value := s.bucket.Get(key)
	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

// Set implements ledger.Snapshot.
func (s *snapshot) Set(key, value []byte) error {
	id, isObject := ledger.ParseObjectKey(key)
	if isObject {
		_, tracked := s.seen[id]
		if !tracked {
			s.seen[id] = struct{}{}

			if s.bucket.Get(key) == nil {
				s.created = append(s.created, id)
			} else {
				s.mutated = append(s.mutated, id)
			}
		}
	}

	return s.bucket.Set(key, value)
}

// Delete implements ledger.Snapshot.
func (s *snapshot) Delete(key []byte) error {
	return s.bucket.Delete(key)
}

// diff returns the created and mutated object ids, in write order.
func (s *snapshot) diff() ([]ledger.ObjectID, []ledger.ObjectID) {
	return s.created, s.mutated
}

// readSnapshot is a read-only view over a kv bucket.
//
// - implements ledger.Snapshot
type readSnapshot struct {
	bucket kv.Bucket
}

func (s readSnapshot) Get(key []byte) ([]byte, error) {
	value := s.bucket.Get(key)
	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

func (s readSnapshot) Set(key, value []byte) error {
	return errReadOnly
}

func (s readSnapshot) Delete(key []byte) error {
	return errReadOnly
}

// overlay buffers every write of a dry run so the underlying state is left
// untouched while the contract still observes its own writes.
//
// - implements ledger.Snapshot
type overlay struct {
	bucket kv.Bucket
	writes map[string][]byte
}

func newOverlay(bucket kv.Bucket) *overlay {
	return &overlay{
		bucket: bucket,
		writes: make(map[string][]byte),
	}
}

// Get implements ledger.Snapshot. Buffered writes shadow the state.
func (o *overlay) Get(key []byte) ([]byte, error) {
	value, written := o.writes[string(key)]
	if written {
		if value == nil {
			return nil, nil
		}

		return append([]byte{}, value...), nil
	}

	stored := o.bucket.Get(key)
	if stored == nil {
		return nil, nil
	}

	return append([]byte{}, stored...), nil
}

// Set implements ledger.Snapshot. The write is buffered.
func (o *overlay) Set(key, value []byte) error {
	o.writes[string(key)] = append([]byte{}, value...)

	return nil
}

// Delete implements ledger.Snapshot. The deletion is buffered.
func (o *overlay) Delete(key []byte) error {
	o.writes[string(key)] = nil

	return nil
}
