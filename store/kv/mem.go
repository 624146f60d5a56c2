package kv

import (
	"bytes"
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// memDB is an in-memory implementation of a key/value database. Updates are
// applied atomically: the callback works on a copy of the bucket that
// replaces the original only when it succeeds.
//
// - implements kv.DB
type memDB struct {
	sync.Mutex
	buckets map[string]map[string][]byte
}

// NewInMemory creates a new volatile key/value database.
func NewInMemory() DB {
	return &memDB{
		buckets: make(map[string]map[string][]byte),
	}
}

// View implements kv.DB. It executes the read-only transaction over the
// bucket, which must exist.
func (db *memDB) View(bucket []byte, fn func(Bucket) error) error {
	db.Lock()
	defer db.Unlock()

	data, found := db.buckets[string(bucket)]
	if !found {
		return xerrors.Errorf("bucket '%x' not found", bucket)
	}

	return fn(&memBucket{data: data})
}

// Update implements kv.DB. It executes the writable transaction over a copy
// of the bucket and commits the copy only when the callback succeeds.
func (db *memDB) Update(bucket []byte, fn func(Bucket) error) error {
	db.Lock()
	defer db.Unlock()

	data := make(map[string][]byte)
	for k, v := range db.buckets[string(bucket)] {
		data[k] = v
	}

	err := fn(&memBucket{data: data})
	if err != nil {
		return err
	}

	db.buckets[string(bucket)] = data

	return nil
}

// Close implements kv.DB. It drops the buckets.
func (db *memDB) Close() error {
	db.Lock()
	defer db.Unlock()

	db.buckets = make(map[string]map[string][]byte)

	return nil
}

// memBucket is the in-memory implementation of a bucket.
//
// - implements kv.Bucket
type memBucket struct {
	data map[string][]byte
}

// Get implements kv.Bucket. It returns the value associated to the key.
func (b *memBucket) Get(key []byte) []byte {
	return b.data[string(key)]
}

// Set implements kv.Bucket. It sets the provided key to the value.
func (b *memBucket) Set(key, value []byte) error {
	b.data[string(key)] = append([]byte{}, value...)

	return nil
}

// Delete implements kv.Bucket. It deletes the key from the bucket.
func (b *memBucket) Delete(key []byte) error {
	delete(b.data, string(key))

	return nil
}

// Scan implements kv.Bucket. It iterates over the keys matching the prefix
// in lexicographic order.
func (b *memBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		err := fn([]byte(k), b.data[k])
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return nil
}
