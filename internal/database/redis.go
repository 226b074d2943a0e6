package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "usage:"

const (
	fieldSubscription = "subscription_id"
	fieldUser         = "user_id"
	fieldProduct      = "product_id"
	fieldInput        = "input_units"
	fieldOutput       = "output_units"
	fieldUpdatedAt    = "updated_at"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisStore keeps one hash per subscription. Counters move with HINCRBY
// inside MULTI/EXEC, so concurrent increments from any number of servers
// add up exactly.
type RedisStore struct {
	client *redis.Client
	now    clock.Clock
}

var _ usage.Store = (*RedisStore)(nil)

func NewRedisStore(cfg RedisConfig, now clock.Clock) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return NewRedisStoreWithClient(client, now)
}

func NewRedisStoreWithClient(client *redis.Client, now clock.Clock) *RedisStore {
	return &RedisStore{client: client, now: now}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) Increment(
	ctx context.Context,
	inc usage.Increment,
) error {
	if inc.SubscriptionID == "" {
		return errMissingSubscription
	}
	inc = inc.Normalized()
	key := redisKeyPrefix + inc.SubscriptionID

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldInput, inc.InputUnits)
	pipe.HIncrBy(ctx, key, fieldOutput, inc.OutputUnits)
	pipe.HSet(ctx, key,
		fieldSubscription, inc.SubscriptionID,
		fieldUser, inc.UserID,
		fieldProduct, inc.ProductID,
		fieldUpdatedAt, s.now.Now().UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(
	ctx context.Context,
	subscriptionID string,
) (
	*usage.Record,
	error,
) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+subscriptionID).Result()
	if err != nil {
		return nil, fmt.Errorf("usage get: %w", err)
	}
	if len(fields) == 0 {
		return nil, usage.ErrNotFound
	}
	return recordFromHash(fields)
}

func recordFromHash(fields map[string]string) (*usage.Record, error) {
	record := &usage.Record{
		SubscriptionID: fields[fieldSubscription],
		UserID:         fields[fieldUser],
		ProductID:      fields[fieldProduct],
	}

	var err error
	if record.InputUnits, err = parseCounter(fields, fieldInput); err != nil {
		return nil, err
	}
	if record.OutputUnits, err = parseCounter(fields, fieldOutput); err != nil {
		return nil, err
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		record.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("usage get: bad %s: %w", fieldUpdatedAt, err)
		}
	}
	return record, nil
}

func parseCounter(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage get: bad %s: %w", name, err)
	}
	return n, nil
}
