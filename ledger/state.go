package ledger

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// Prefixes of the keys of the ledger state. Objects, dynamic fields and the
// ownership index live in the same keyspace so that a transaction mutates
// all of them atomically.
const (
	prefixObject = 'O'
	prefixField  = 'F'
	prefixOwner  = 'W'
)

// ObjectKey returns the state key holding the object.
func ObjectKey(id ObjectID) []byte {
	return append([]byte{prefixObject}, id[:]...)
}

// ParseObjectKey returns the object id of a state key, or false when the key
// does not address an object.
func ParseObjectKey(key []byte) (ObjectID, bool) {
	if len(key) != 1+32 || key[0] != prefixObject {
		return ObjectID{}, false
	}

	id := ObjectID{}
	copy(id[:], key[1:])

	return id, true
}

// FieldKey returns the state key of the dynamic field attached to the
// parent structure.
func FieldKey(parent ObjectID, key []byte) []byte {
	buf := append([]byte{prefixField}, parent[:]...)
	return append(buf, key...)
}

// FieldPrefix returns the state key prefix shared by every dynamic field of
// the parent structure.
func FieldPrefix(parent ObjectID) []byte {
	return append([]byte{prefixField}, parent[:]...)
}

// OwnerKey returns the ownership index key of the object for the owner.
func OwnerKey(owner Address, id ObjectID) []byte {
	buf := append([]byte{prefixOwner}, owner[:]...)
	return append(buf, id[:]...)
}

// OwnerPrefix returns the ownership index prefix of the owner.
func OwnerPrefix(owner Address) []byte {
	return append([]byte{prefixOwner}, owner[:]...)
}

type objectJSON struct {
	Type    string `json:"type"`
	Owner   string `json:"owner,omitempty"`
	Content []byte `json:"content"`
}

// StoreObject writes the object to the snapshot and maintains the ownership
// index when the object has an owner.
func StoreObject(snap Snapshot, obj Object) error {
	m := objectJSON{
		Type:    obj.GetType(),
		Content: obj.GetContent(),
	}

	if !obj.GetOwner().IsZero() {
		m.Owner = obj.GetOwner().String()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return xerrors.Errorf("failed to marshal object: %v", err)
	}

	err = snap.Set(ObjectKey(obj.GetID()), data)
	if err != nil {
		return xerrors.Errorf("failed to set object: %v", err)
	}

	if !obj.GetOwner().IsZero() {
		err = snap.Set(OwnerKey(obj.GetOwner(), obj.GetID()), []byte(obj.GetType()))
		if err != nil {
			return xerrors.Errorf("failed to index owner: %v", err)
		}
	}

	return nil
}

// LoadObject reads the object from the snapshot, or returns an
// ObjectNotFoundError.
func LoadObject(snap Snapshot, id ObjectID) (Object, error) {
	data, err := snap.Get(ObjectKey(id))
	if err != nil {
		return Object{}, xerrors.Errorf("failed to read object: %v", err)
	}

	if data == nil {
		return Object{}, NewObjectNotFoundError(id)
	}

	return decodeObject(id, data)
}

func decodeObject(id ObjectID, data []byte) (Object, error) {
	m := objectJSON{}

	err := json.Unmarshal(data, &m)
	if err != nil {
		return Object{}, xerrors.Errorf("failed to unmarshal object: %v", err)
	}

	owner := Address{}
	if m.Owner != "" {
		owner, err = ParseAddress(m.Owner)
		if err != nil {
			return Object{}, xerrors.Errorf("failed to parse owner: %w", err)
		}
	}

	return NewObject(id, m.Type, owner, m.Content), nil
}

// SetFieldValue writes the dynamic field (parent, key) to the snapshot.
func SetFieldValue(snap Snapshot, parent ObjectID, key, value []byte) error {
	err := snap.Set(FieldKey(parent, key), value)
	if err != nil {
		return xerrors.Errorf("failed to set field: %v", err)
	}

	return nil
}

// GetFieldValue reads the dynamic field (parent, key) from the snapshot. An
// absent entry is reported with a FieldAbsentError.
func GetFieldValue(snap Snapshot, parent ObjectID, key []byte) ([]byte, error) {
	value, err := snap.Get(FieldKey(parent, key))
	if err != nil {
		return nil, xerrors.Errorf("failed to read field: %v", err)
	}

	if value == nil {
		return nil, NewFieldAbsentError(parent, key)
	}

	return value, nil
}

// DeleteFieldValue removes the dynamic field (parent, key) from the
// snapshot.
func DeleteFieldValue(snap Snapshot, parent ObjectID, key []byte) error {
	err := snap.Delete(FieldKey(parent, key))
	if err != nil {
		return xerrors.Errorf("failed to delete field: %v", err)
	}

	return nil
}
