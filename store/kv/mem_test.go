package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestMemDB_WriteAndRead(t *testing.T) {
	db := NewInMemory()

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		return b.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.View(bucket, func(b Bucket) error {
		require.Equal(t, []byte("pong"), b.Get([]byte("ping")))
		return nil
	})
	require.NoError(t, err)

	err = db.View([]byte("unknown"), func(Bucket) error { return nil })
	require.EqualError(t, err, "bucket '756e6b6e6f776e' not found")
}

func TestMemDB_AbortOnError(t *testing.T) {
	db := NewInMemory()

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))
		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")

	err = db.View(bucket, func(Bucket) error { return nil })
	require.EqualError(t, err, "bucket '74657374' not found")
}

func TestMemDB_DeleteAndScan(t *testing.T) {
	db := NewInMemory()

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		require.NoError(t, b.Set([]byte("a/1"), []byte{1}))
		require.NoError(t, b.Set([]byte("a/2"), []byte{2}))
		require.NoError(t, b.Set([]byte("b/1"), []byte{3}))
		return b.Delete([]byte("a/2"))
	})
	require.NoError(t, err)

	var keys []string

	err = db.View(bucket, func(b Bucket) error {
		return b.Scan([]byte("a/"), func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a/1"}, keys)

	require.NoError(t, db.Close())

	err = db.View(bucket, func(Bucket) error { return nil })
	require.EqualError(t, err, "bucket '74657374' not found")
}
