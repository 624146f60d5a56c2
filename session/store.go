package session

import (
	"time"

	"golang.org/x/xerrors"

	"go.signet.dev/signet/ledger"
	"go.signet.dev/signet/store/kv"
)

var storeBucket = []byte("session-keys")

// Store persists session keys in a key/value database, keyed by the wallet
// address and the contract scope. Only one live key is kept per pair.
type Store struct {
	db kv.DB
}

// NewStore creates a new session key store on top of the database.
func NewStore(db kv.DB) *Store {
	return &Store{db: db}
}

func storeKey(address ledger.Address, scope string) []byte {
	return append(address.Bytes(), []byte(scope)...)
}

// Save writes the session key, replacing a previous one for the same address
// and scope.
func (s *Store) Save(key SessionKey) error {
	data, err := key.Export()
	if err != nil {
		return xerrors.Errorf("failed to export session key: %v", err)
	}

	err = s.db.Update(storeBucket, func(bucket kv.Bucket) error {
		return bucket.Set(storeKey(key.GetAddress(), key.GetScope()), data)
	})
	if err != nil {
		return xerrors.Errorf("failed to write session key: %v", err)
	}

	return nil
}

// Load returns the stored session key for the address and scope. An expired
// entry is dropped from the store and reported as absent.
func (s *Store) Load(address ledger.Address, scope string) (SessionKey, bool, error) {
	var key SessionKey
	found := false

	err := s.db.Update(storeBucket, func(bucket kv.Bucket) error {
		data := bucket.Get(storeKey(address, scope))
		if data == nil {
			return nil
		}

		loaded, err := Import(data)
		if err != nil {
			return xerrors.Errorf("failed to import session key: %v", err)
		}

		if loaded.IsExpired(time.Now()) {
			return bucket.Delete(storeKey(address, scope))
		}

		key = loaded
		found = true

		return nil
	})
	if err != nil {
		return SessionKey{}, false, xerrors.Errorf("failed to read session key: %v", err)
	}

	return key, found, nil
}

// Delete removes the stored session key for the address and scope.
func (s *Store) Delete(address ledger.Address, scope string) error {
	err := s.db.Update(storeBucket, func(bucket kv.Bucket) error {
		return bucket.Delete(storeKey(address, scope))
	})
	if err != nil {
		return xerrors.Errorf("failed to delete session key: %v", err)
	}

	return nil
}
