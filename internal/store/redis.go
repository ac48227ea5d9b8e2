package store

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// RedisStore keeps one hash per owner with a field per container name.
type RedisStore struct {
	client *redis.Client
	prefix string
	format Format
	owned  bool
}

// NewRedisStore wraps an existing client. The client stays owned by the
// caller; Close is a no-op.
func NewRedisStore(client *redis.Client, prefix string, format Format) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, format: format}
}

// DialRedis connects to addr and verifies the connection. Close releases
// the client.
func DialRedis(ctx context.Context, opts *redis.Options, prefix string, format Format) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	s := NewRedisStore(client, prefix, format)
	s.owned = true
	return s, nil
}

func (s *RedisStore) key(owner inventory.OwnerID) string {
	return s.prefix + string(owner)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, owner inventory.OwnerID, snap inventory.Snapshot) error {
	if err := validKey(owner, snap.Name); err != nil {
		return err
	}
	data, err := Encode(snap, s.format)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(owner), snap.Name, data).Err(); err != nil {
		return errors.Wrapf(err, "redis save %s/%s", owner, snap.Name)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, owner inventory.OwnerID, name string) (inventory.Snapshot, error) {
	data, err := s.client.HGet(ctx, s.key(owner), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return inventory.Snapshot{}, errors.Wrapf(ErrSnapshotNotFound, "%s/%s", owner, name)
	}
	if err != nil {
		return inventory.Snapshot{}, errors.Wrapf(err, "redis load %s/%s", owner, name)
	}
	return Decode(data, s.format)
}

// LoadAll implements Store.
func (s *RedisStore) LoadAll(ctx context.Context, owner inventory.OwnerID) ([]inventory.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key(owner)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis load all %s", owner)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]inventory.Snapshot, 0, len(names))
	for _, name := range names {
		snap, err := Decode([]byte(fields[name]), s.format)
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s", owner, name)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, owner inventory.OwnerID, name string) error {
	if err := s.client.HDel(ctx, s.key(owner), name).Err(); err != nil {
		return errors.Wrapf(err, "redis delete %s/%s", owner, name)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
