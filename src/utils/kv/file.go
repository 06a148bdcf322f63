package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every key in its own JSON file under dir.
// Writes go through a temp file and a rename.
type FileStore struct {
	dir    string
	prefix string
	mtx    sync.Mutex
}

func NewFileStore(dir, prefix string) (self *FileStore, err error) {
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return
	}
	self = &FileStore{dir: dir, prefix: prefix}
	return
}

func (self *FileStore) path(key string) string {
	return filepath.Join(self.dir, fmt.Sprintf("%s_%s.json", self.prefix, key))
}

func (self *FileStore) Load(ctx context.Context, key string, dst interface{}) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	data, err := os.ReadFile(self.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrKeyNotFound
		}
		return
	}

	return json.Unmarshal(data, dst)
}

func (self *FileStore) Save(ctx context.Context, key string, val interface{}) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	data, err := json.Marshal(val)
	if err != nil {
		return
	}

	tmp, err := os.CreateTemp(self.dir, self.prefix+"_*")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		return
	}
	err = tmp.Close()
	if err != nil {
		return
	}

	return os.Rename(tmp.Name(), self.path(key))
}

func (self *FileStore) Delete(ctx context.Context, key string) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	err = os.Remove(self.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return
}
