// Package blob defines the content-addressed storage of encrypted documents.
//
// A document is stored under the hex digest of its bytes, so the identifier
// published on an access list commits to the exact ciphertext the members
// are granted.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID is the content address of a stored document.
type ID string

// NewID computes the content address of the data.
func NewID(data []byte) ID {
	digest := sha256.Sum256(data)

	return ID(hex.EncodeToString(digest[:]))
}

// Bytes returns the identifier in the form it travels in transaction
// arguments.
func (id ID) Bytes() []byte {
	return []byte(id)
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Store defines the storage of encrypted documents.
type Store interface {
	// Put stores the data and returns its content address.
	Put(data []byte) (ID, error)

	// Get returns the data stored under the identifier, or a NotFoundError.
	Get(id ID) ([]byte, error)
}

// NotFoundError is returned when no document is stored under the requested
// identifier.
type NotFoundError struct {
	id ID
}

// NewNotFoundError returns a new instance of the error.
func NewNotFoundError(id ID) NotFoundError {
	return NotFoundError{id: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("blob '%s' not found", err.id)
}

// Is returns true when both errors are equal, otherwise it returns false.
func (err NotFoundError) Is(other error) bool {
	otherErr, ok := other.(NotFoundError)
	return ok && otherErr == err
}
