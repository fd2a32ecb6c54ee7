package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // prepended to every key
	Channel  string // pub/sub channel carrying change notices
}

// notice is published on every write so other instances can merge it.
type notice struct {
	Origin  string          `json:"origin"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// RedisBackend stores each key as a redis string and announces writes on a
// pub/sub channel. Notices carry a per-instance origin so an instance never
// merges its own writes.
type RedisBackend struct {
	rdb     *redis.Client
	prefix  string
	channel string
	origin  string
}

// NewRedisBackend connects to redis and verifies the connection.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisBackendFromClient(rdb, opts.Prefix, opts.Channel), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(rdb *redis.Client, prefix, channel string) *RedisBackend {
	return &RedisBackend{
		rdb:     rdb,
		prefix:  prefix,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// LoadAll scans every key under the prefix.
func (r *RedisBackend) LoadAll(ctx context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := r.rdb.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", full, err)
		}
		out[full[len(r.prefix):]] = v
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s*: %w", r.prefix, err)
	}
	return out, nil
}

// Put stores key and publishes a notice.
func (r *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return r.publish(ctx, notice{Origin: r.origin, Key: key, Value: value})
}

// Delete removes key and publishes a notice.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return r.publish(ctx, notice{Origin: r.origin, Key: key, Deleted: true})
}

// Watch subscribes to the notice channel and reports foreign writes.
func (r *RedisBackend) Watch(ctx context.Context, fn func(Change)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var n notice
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				continue
			}
			if n.Origin == r.origin {
				continue
			}
			fn(Change{Key: n.Key, Value: []byte(n.Value), Deleted: n.Deleted})
		}
	}
}

// Close closes the redis connection.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

func (r *RedisBackend) publish(ctx context.Context, n notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", n.Key, err)
	}
	return nil
}
