package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists snapshots in Redis, for deployments where
// several instances need to share queue and session key state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(config *config.Config) (self *RedisStore, err error) {
	self = new(RedisStore)
	self.prefix = config.KV.Prefix

	self.client = redis.NewClient(&redis.Options{
		ClientName:      "chaincore/kv",
		Addr:            fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Username:        config.Redis.User,
		Password:        config.Redis.Password,
		DB:              config.Redis.DB,
		MinIdleConns:    config.Redis.MinIdleConns,
		MaxIdleConns:    config.Redis.MaxIdleConns,
		PoolSize:        config.Redis.MaxOpenConns,
		ConnMaxIdleTime: config.Redis.ConnMaxIdleTime,
		ConnMaxLifetime: config.Redis.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = self.client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return
}

func (self *RedisStore) key(key string) string {
	return self.prefix + ":" + key
}

func (self *RedisStore) Load(ctx context.Context, key string, dst interface{}) (err error) {
	data, err := self.client.Get(ctx, self.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrKeyNotFound
		}
		return
	}
	return json.Unmarshal(data, dst)
}

func (self *RedisStore) Save(ctx context.Context, key string, val interface{}) (err error) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	return self.client.Set(ctx, self.key(key), data, 0).Err()
}

func (self *RedisStore) Delete(ctx context.Context, key string) error {
	return self.client.Del(ctx, self.key(key)).Err()
}
