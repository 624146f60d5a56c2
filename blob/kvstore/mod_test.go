package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.signet.dev/signet/blob"
	"go.signet.dev/signet/store/kv"
)

func TestStore(t *testing.T) {
	store := NewStore(kv.NewInMemory())

	id, err := store.Put([]byte("the document"))
	require.NoError(t, err)
	require.Equal(t, blob.NewID([]byte("the document")), id)

	data, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("the document"), data)

	missing := blob.NewID([]byte("missing"))

	_, err = store.Get(missing)
	require.ErrorIs(t, err, blob.NewNotFoundError(missing))
}
