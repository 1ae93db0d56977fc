// Package redisstore implements internal/store.Store over a remote
// Redis (or Redis Cluster) deployment via github.com/redis/go-redis/v9.
// It maps the abstract store operations onto Redis's own command set
// almost one-to-one, mirroring original_source/src/redis_data_store.rs's
// RedisDataStore.
package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/marmos91/graymamba/internal/store"
)

const authKeyPrefix = "auth:"

// Store is a Redis-backed implementation of store.Store.
type Store struct {
	client redis.UniversalClient
}

// Config describes how to reach the Redis deployment.
type Config struct {
	Addrs    []string
	Password string
	DB       int
	// ClusterMode selects redis.NewClusterClient over all Addrs; when
	// false, redis.NewClient connects to Addrs[0] using DB.
	ClusterMode bool
}

// New connects to Redis per cfg. It does not verify connectivity; the
// first failing command reports an unreachable server.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redisstore: no addresses configured")
	}
	var client redis.UniversalClient
	if cfg.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if err == redis.Nil {
		return store.ErrKeyNotFound
	}
	return store.ErrOperationFailed
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", store.ErrKeyNotFound
	}
	if err != nil {
		return "", store.ErrConnectionError
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return wrapErr(s.client.Set(ctx, key, value, 0).Err())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return wrapErr(s.client.Del(ctx, key).Err())
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", store.ErrKeyNotFound
	}
	if err != nil {
		return "", store.ErrConnectionError
	}
	return v, nil
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return wrapErr(s.client.HSet(ctx, key, field, value).Err())
}

func (s *Store) HDel(ctx context.Context, key, field string) error {
	return wrapErr(s.client.HDel(ctx, key, field).Err())
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	return m, nil
}

func (s *Store) HSetMultiple(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return wrapErr(s.client.HSet(ctx, key, args...).Err())
}

func (s *Store) ZAdd(ctx context.Context, key, member string, score float64) error {
	return wrapErr(s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *Store) ZRem(ctx context.Context, key, member string) error {
	return wrapErr(s.client.ZRem(ctx, key, member).Err())
}

func (s *Store) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]store.ScoredMember, error) {
	zs, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	result := make([]store.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		result = append(result, store.ScoredMember{Member: member, Score: z.Score})
	}
	return result, nil
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	result, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%v", min),
		Max: fmt.Sprintf("%v", max),
	}).Result()
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	return result, nil
}

func (s *Store) ZScanMatch(ctx context.Context, key, pattern string) ([]string, error) {
	var members []string
	var cursor uint64
	for {
		keys, next, err := s.client.ZScan(ctx, key, cursor, pattern, 0).Result()
		if err != nil {
			return nil, store.ErrOperationFailed
		}
		for i := 0; i < len(keys); i += 2 {
			members = append(members, keys[i])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return members, nil
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, store.ErrOperationFailed
	}
	return score, true, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, store.ErrOperationFailed
	}
	return v, nil
}

func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	err := s.client.Rename(ctx, oldKey, newKey).Err()
	if err != nil {
		// RENAME reports a missing source key as "ERR no such key".
		if strings.Contains(err.Error(), "no such key") {
			return store.ErrKeyNotFound
		}
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	result, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	return result, nil
}

func (s *Store) AuthenticateUser(ctx context.Context, key string) (store.AuthClass, error) {
	v, err := s.client.Get(ctx, authKeyPrefix+key).Result()
	if err == redis.Nil {
		return store.AuthNone, nil
	}
	if err != nil {
		return store.AuthNone, store.ErrConnectionError
	}
	switch v {
	case "special":
		return store.AuthSpecial, nil
	case "usual":
		return store.AuthUsual, nil
	default:
		return store.AuthNone, nil
	}
}
