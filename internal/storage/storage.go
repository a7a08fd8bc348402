package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// Backend names accepted by Open
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrCorruptCache is returned when a stored snapshot exists but cannot be decoded
var ErrCorruptCache = errors.New("corrupt offers cache")

// Store loads and saves the latest list of offers
type Store interface {
	// Load returns the cached offers in stored order. A missing snapshot yields
	// an empty list with found set to false.
	Load(ctx context.Context) (offers []*offer.Offer, found bool, err error)
	// Save replaces the cached snapshot with offers
	Save(ctx context.Context, offers []*offer.Offer) error
	// Location describes where the snapshot lives, for messages
	Location() string
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend     string
	Path        string
	RedisAddr   string
	RedisKey    string
	PostgresDSN string
}

// Open creates the store for the configured backend
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)

	// A failed constructor must not produce a non-nil Store
	switch opts.Backend {
	case "", BackendFile:
		var fs *FileStore
		fs, err = NewFileStore(opts.Path)
		store = fs
	case BackendRedis:
		var rs *RedisStore
		rs, err = NewRedisStore(ctx, opts.RedisAddr, opts.RedisKey)
		store = rs
	case BackendPostgres:
		var ps *PostgresStore
		ps, err = NewPostgresStore(ctx, opts.PostgresDSN)
		store = ps
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", opts.Backend)
	}

	if err != nil {
		return nil, err
	}
	return store, nil
}

// cachedOffer mirrors offer.Offer with pointer fields so missing keys can be detected
type cachedOffer struct {
	ID       *string `json:"id"`
	Link     *string `json:"link"`
	Address  *string `json:"address"`
	RoomType *string `json:"room_type"`
	Cost     *string `json:"cost"`
	NRooms   *string `json:"n_rooms"`
	Size     *string `json:"size"`
}

// decodeOffers parses the JSON cache document
func decodeOffers(data []byte) ([]*offer.Offer, error) {
	var raw []*cachedOffer
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if raw == nil && !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrCorruptCache)
	}

	offers := make([]*offer.Offer, 0, len(raw))
	for i, c := range raw {
		if c == nil || c.ID == nil || c.Link == nil || c.Address == nil || c.RoomType == nil ||
			c.Cost == nil || c.NRooms == nil || c.Size == nil {
			return nil, fmt.Errorf("%w: element %d is missing offer fields", ErrCorruptCache, i)
		}
		offers = append(offers, offer.NewOffer(*c.ID, *c.Link, *c.Address, *c.RoomType, *c.Cost, *c.NRooms, *c.Size))
	}
	return offers, nil
}

// encodeOffers renders offers as the JSON cache document
func encodeOffers(offers []*offer.Offer) ([]byte, error) {
	if offers == nil {
		offers = make([]*offer.Offer, 0)
	}
	data, err := json.MarshalIndent(offers, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding offers: %w", err)
	}
	return append(data, '\n'), nil
}
