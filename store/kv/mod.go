// Package kv defines the abstraction for a key/value database.
//
// The package implements a default database based on bbolt
// (https://github.com/etcd-io/bbolt) and an in-memory alternative suitable
// for tests and volatile deployments.
package kv

// Bucket is a general interface to operate on a database bucket.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if the
	// key does not exist.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// Delete deletes the key from the bucket.
	Delete(key []byte) error

	// Scan iterates over every key that matches the prefix in lexicographic
	// order. The iteration stops when the callback returns an error.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// DB is a general interface to operate over a key/value database.
type DB interface {
	// View executes the provided read-only transaction in the context of the
	// bucket.
	View(bucket []byte, fn func(Bucket) error) error

	// Update executes the provided writable transaction in the context of
	// the bucket, creating it when necessary. Any error returned by the
	// callback aborts the transaction.
	Update(bucket []byte, fn func(Bucket) error) error

	// Close closes the database and frees the resources.
	Close() error
}
