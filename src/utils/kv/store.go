package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshtrace/chaincore/src/utils/config"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is the durable key-value persistence used by the queue manager
// and the session key module to survive restarts. Values are JSON
// round-tripped snapshots, so concurrent writers follow a
// last-write-wins policy per key.
type Store interface {
	Load(ctx context.Context, key string, dst interface{}) error
	Save(ctx context.Context, key string, val interface{}) error
	Delete(ctx context.Context, key string) error
}

// NewStore creates the backend selected in the configuration.
func NewStore(config *config.Config) (store Store, err error) {
	switch config.KV.Backend {
	case "file":
		return NewFileStore(config.KV.Dir, config.KV.Prefix)
	case "redis":
		return NewRedisStore(config)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown kv backend: %s", config.KV.Backend)
	}
}
