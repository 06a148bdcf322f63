package kv

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is a process-local Store, used in tests and development mode.
type MemoryStore struct {
	values map[string][]byte
	mtx    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (self *MemoryStore) Load(ctx context.Context, key string, dst interface{}) error {
	self.mtx.RLock()
	data, ok := self.values[key]
	self.mtx.RUnlock()
	if !ok {
		return ErrKeyNotFound
	}
	return json.Unmarshal(data, dst)
}

func (self *MemoryStore) Save(ctx context.Context, key string, val interface{}) (err error) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	self.mtx.Lock()
	self.values[key] = data
	self.mtx.Unlock()
	return
}

func (self *MemoryStore) Delete(ctx context.Context, key string) error {
	self.mtx.Lock()
	delete(self.values, key)
	self.mtx.Unlock()
	return nil
}
