// Package crypto defines the abstractions for the cryptographic primitives
// used across the module: public keys, signatures and signers.
//
// The concrete implementation based on the Schnorr algorithm over the
// Ed25519 curve lives in the schnorr subpackage.
package crypto

import (
	"encoding"
	"hash"
)

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler

	// Verify returns nil if the signature matches the message for this
	// public key.
	Verify(msg []byte, signature Signature) error

	// Equal returns true when the other public key represents the same
	// identity.
	Equal(other PublicKey) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	// Equal returns true when both signatures are the same.
	Equal(other Signature) bool
}

// Signer provides the primitives to sign a message.
type Signer interface {
	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign signs the message and returns the signature.
	Sign(msg []byte) (Signature, error)
}

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}
