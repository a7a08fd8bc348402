package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// DefaultRedisKey holds the JSON snapshot when no key is configured
const DefaultRedisKey = "stuwo-offers:cache"

// RedisStore keeps the JSON snapshot under a single Redis key
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and verifies the connection
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required for the redis cache backend")
	}
	if key == "" {
		key = DefaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		key:    key,
	}, nil
}

// Location returns the address and key of the snapshot
func (s *RedisStore) Location() string {
	return fmt.Sprintf("redis://%s/%s", s.client.Options().Addr, s.key)
}

// Load reads the snapshot. A missing key is not an error.
func (s *RedisStore) Load(ctx context.Context) ([]*offer.Offer, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return make([]*offer.Offer, 0), false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}

	offers, err := decodeOffers(data)
	if err != nil {
		return nil, true, fmt.Errorf("parsing cache %s: %w", s.key, err)
	}
	return offers, true, nil
}

// Save replaces the snapshot. SET is atomic, readers see either version.
func (s *RedisStore) Save(ctx context.Context, offers []*offer.Offer) error {
	data, err := encodeOffers(offers)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Close closes the client connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
