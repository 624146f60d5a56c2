package inmemory

import (
	"sync"

	"go.signet.dev/signet/blob"
)

// NewInMemory returns a new in memory blob store.
func NewInMemory() *InMemory {
	return &InMemory{
		database: make(map[blob.ID][]byte),
	}
}

// InMemory implements an in memory blob store. It is safe for concurrent
// use.
//
// - implements blob.Store
type InMemory struct {
	sync.Mutex
	database map[blob.ID][]byte
}

// Put implements blob.Store.
func (i *InMemory) Put(data []byte) (blob.ID, error) {
	id := blob.NewID(data)

	i.Lock()
	i.database[id] = append([]byte{}, data...)
	i.Unlock()

	return id, nil
}

// Get implements blob.Store.
func (i *InMemory) Get(id blob.ID) ([]byte, error) {
	i.Lock()
	defer i.Unlock()

	data, found := i.database[id]
	if !found {
		return nil, blob.NewNotFoundError(id)
	}

	return append([]byte{}, data...), nil
}
