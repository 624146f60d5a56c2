// Package kvstore implements a blob store persisted in a key/value database.
package kvstore

import (
	"golang.org/x/xerrors"

	"go.signet.dev/signet/blob"
	"go.signet.dev/signet/store/kv"
)

var blobBucket = []byte("blobs")

// Store persists envelopes in a key/value database, keyed by their content
// address.
//
// - implements blob.Store
type Store struct {
	db kv.DB
}

// NewStore creates a new blob store on top of the database.
func NewStore(db kv.DB) *Store {
	return &Store{db: db}
}

// Put implements blob.Store.
func (s *Store) Put(data []byte) (blob.ID, error) {
	id := blob.NewID(data)

	err := s.db.Update(blobBucket, func(bucket kv.Bucket) error {
		return bucket.Set(id.Bytes(), data)
	})
	if err != nil {
		return "", xerrors.Errorf("failed to write blob: %v", err)
	}

	return id, nil
}

// Get implements blob.Store.
func (s *Store) Get(id blob.ID) ([]byte, error) {
	var data []byte

	err := s.db.Update(blobBucket, func(bucket kv.Bucket) error {
		stored := bucket.Get(id.Bytes())
		if stored == nil {
			return blob.NewNotFoundError(id)
		}

		data = append([]byte{}, stored...)

		return nil
	})
	if err != nil {
		if xerrors.Is(err, blob.NewNotFoundError(id)) {
			return nil, blob.NewNotFoundError(id)
		}

		return nil, xerrors.Errorf("failed to read blob: %v", err)
	}

	return data, nil
}
