package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.signet.dev/signet/internal/testing/fake"
)

func TestStoreObject(t *testing.T) {
	snap := fake.NewSnapshot()

	id := DeriveID([]byte("seed"), 0)
	owner := Address{0xaa}

	obj := NewObject(id, "test.Object", owner, []byte("content"))

	err := StoreObject(snap, obj)
	require.NoError(t, err)

	loaded, err := LoadObject(snap, id)
	require.NoError(t, err)
	require.True(t, obj.Equal(loaded))

	// The ownership index is maintained alongside the object.
	typ, err := snap.Get(OwnerKey(owner, id))
	require.NoError(t, err)
	require.Equal(t, []byte("test.Object"), typ)

	err = StoreObject(fake.NewBadSnapshot(), obj)
	require.EqualError(t, err, fake.Err("failed to set object"))
}

func TestStoreObject_Shared(t *testing.T) {
	snap := fake.NewSnapshot()

	id := DeriveID([]byte("seed"), 0)

	// A shared object has no owner and therefore no index entry.
	err := StoreObject(snap, NewObject(id, "test.Object", Address{}, []byte("content")))
	require.NoError(t, err)

	loaded, err := LoadObject(snap, id)
	require.NoError(t, err)
	require.True(t, loaded.GetOwner().IsZero())
}

func TestLoadObject(t *testing.T) {
	snap := fake.NewSnapshot()

	id := DeriveID([]byte("seed"), 0)

	_, err := LoadObject(snap, id)
	require.ErrorIs(t, err, NewObjectNotFoundError(id))
	require.NotErrorIs(t, err, NewObjectNotFoundError(DeriveID([]byte("seed"), 1)))

	_, err = LoadObject(fake.NewBadSnapshot(), id)
	require.EqualError(t, err, fake.Err("failed to read object"))

	err = snap.Set(ObjectKey(id), []byte("junk"))
	require.NoError(t, err)

	_, err = LoadObject(snap, id)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal object")

	err = snap.Set(ObjectKey(id), []byte(`{"type":"test.Object","owner":"oops"}`))
	require.NoError(t, err)

	_, err = LoadObject(snap, id)
	require.ErrorIs(t, err, NewInvalidIdentityError("oops"))
}

func TestFieldValue(t *testing.T) {
	snap := fake.NewSnapshot()

	parent := DeriveID([]byte("seed"), 0)

	_, err := GetFieldValue(snap, parent, []byte("key"))
	require.ErrorIs(t, err, NewFieldAbsentError(parent, []byte("key")))

	err = SetFieldValue(snap, parent, []byte("key"), []byte("value"))
	require.NoError(t, err)

	value, err := GetFieldValue(snap, parent, []byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)

	// The same key under another parent is a different entry.
	_, err = GetFieldValue(snap, DeriveID([]byte("seed"), 1), []byte("key"))
	require.ErrorIs(t, err, NewFieldAbsentError(DeriveID([]byte("seed"), 1), []byte("key")))

	err = DeleteFieldValue(snap, parent, []byte("key"))
	require.NoError(t, err)

	_, err = GetFieldValue(snap, parent, []byte("key"))
	require.ErrorIs(t, err, NewFieldAbsentError(parent, []byte("key")))
}

func TestFieldValue_BadSnapshot(t *testing.T) {
	snap := fake.NewBadSnapshot()

	parent := DeriveID([]byte("seed"), 0)

	err := SetFieldValue(snap, parent, []byte("key"), []byte("value"))
	require.EqualError(t, err, fake.Err("failed to set field"))

	_, err = GetFieldValue(snap, parent, []byte("key"))
	require.EqualError(t, err, fake.Err("failed to read field"))

	err = DeleteFieldValue(snap, parent, []byte("key"))
	require.EqualError(t, err, fake.Err("failed to delete field"))
}

func TestParseObjectKey(t *testing.T) {
	id := DeriveID([]byte("seed"), 0)

	parsed, ok := ParseObjectKey(ObjectKey(id))
	require.True(t, ok)
	require.Equal(t, id, parsed)

	_, ok = ParseObjectKey(FieldKey(id, []byte{}))
	require.False(t, ok)

	_, ok = ParseObjectKey([]byte("short"))
	require.False(t, ok)
}
