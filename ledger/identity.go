package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/xerrors"

	"go.signet.dev/signet/crypto"
)

// AddressLen is the size in bytes of an address.
const AddressLen = 32

// Address is the identity of a wallet on the ledger. It is derived from the
// wallet's public key.
type Address [AddressLen]byte

// ParseAddress returns the address of its canonical text form, which is a
// 0x-prefixed hex string. It returns an InvalidIdentityError when the input
// is not a well-formed address.
func ParseAddress(text string) (Address, error) {
	if len(text) != 2+2*AddressLen || text[:2] != "0x" {
		return Address{}, NewInvalidIdentityError(text)
	}

	buf, err := hex.DecodeString(text[2:])
	if err != nil {
		return Address{}, NewInvalidIdentityError(text)
	}

	addr := Address{}
	copy(addr[:], buf)

	return addr, nil
}

// NewAddressFromPublicKey derives the address bound to the public key.
func NewAddressFromPublicKey(pk crypto.PublicKey) (Address, error) {
	buf, err := pk.MarshalBinary()
	if err != nil {
		return Address{}, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	return Address(sha256.Sum256(buf)), nil
}

// Bytes returns the raw bytes of the address.
func (a Address) Bytes() []byte {
	return append([]byte{}, a[:]...)
}

// Equal returns true when both addresses are the same.
func (a Address) Equal(other Address) bool {
	return a == other
}

// IsZero returns true for the zero address, which identifies nobody.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String implements fmt.Stringer. It returns the canonical text form of the
// address.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", a[:])
}

// ObjectID is the stable reference of an object held by the ledger.
type ObjectID [32]byte

// ParseObjectID returns the object id of its 0x-prefixed hex form.
func ParseObjectID(text string) (ObjectID, error) {
	addr, err := ParseAddress(text)
	if err != nil {
		return ObjectID{}, xerrors.Errorf("malformed object id '%s'", text)
	}

	return ObjectID(addr), nil
}

// DeriveID deterministically derives the id of the index-th object created
// by the transaction identified by the seed.
func DeriveID(seed []byte, index uint32) ObjectID {
	h := sha256.New()
	h.Write(seed)

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, index)
	h.Write(buf)

	id := ObjectID{}
	copy(id[:], h.Sum(nil))

	return id
}

// Bytes returns the raw bytes of the object id.
func (id ObjectID) Bytes() []byte {
	return append([]byte{}, id[:]...)
}

// IsZero returns true for the zero object id.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// String implements fmt.Stringer. It returns the 0x-prefixed hex form of the
// object id.
func (id ObjectID) String() string {
	return fmt.Sprintf("0x%x", id[:])
}

// Object is a unit of state held by the ledger. The content is opaque to the
// ledger itself and interpreted by the contract owning the type.
type Object struct {
	id      ObjectID
	typ     string
	owner   Address
	content []byte
}

// NewObject creates a new object. A zero owner address marks the object as
// shared.
func NewObject(id ObjectID, typ string, owner Address, content []byte) Object {
	return Object{
		id:      id,
		typ:     typ,
		owner:   owner,
		content: append([]byte{}, content...),
	}
}

// GetID returns the object reference.
func (o Object) GetID() ObjectID {
	return o.id
}

// GetType returns the object type tag.
func (o Object) GetType() string {
	return o.typ
}

// GetOwner returns the owner of the object, or the zero address for a shared
// object.
func (o Object) GetOwner() Address {
	return o.owner
}

// GetContent returns the content of the object.
func (o Object) GetContent() []byte {
	return append([]byte{}, o.content...)
}

// Equal returns true when both objects are identical.
func (o Object) Equal(other Object) bool {
	return o.id == other.id &&
		o.typ == other.typ &&
		o.owner == other.owner &&
		bytes.Equal(o.content, other.content)
}
