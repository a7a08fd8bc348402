package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

const insertBatchSize = 50

// PostgresStore keeps the offers as rows of the offers table, ordered by position
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, waits for the server and creates the table
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required for the postgres cache backend")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	ping := func() error { return db.PingContext(ctx) }
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS offers (
			position  INTEGER PRIMARY KEY,
			id        TEXT NOT NULL,
			link      TEXT NOT NULL,
			address   TEXT NOT NULL,
			room_type TEXT NOT NULL,
			cost      TEXT NOT NULL,
			n_rooms   TEXT NOT NULL,
			size      TEXT NOT NULL
		);
	`)
	return err
}

// Location names the table
func (ps *PostgresStore) Location() string {
	return "postgres table offers"
}

// Load returns all rows in position order. An empty table counts as no snapshot.
func (ps *PostgresStore) Load(ctx context.Context) ([]*offer.Offer, bool, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, link, address, room_type, cost, n_rooms, size
		FROM offers
		ORDER BY position
	`)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	offers := make([]*offer.Offer, 0)
	for rows.Next() {
		var o offer.Offer
		if err := rows.Scan(&o.ID, &o.Link, &o.Address, &o.RoomType, &o.Cost, &o.NRooms, &o.Size); err != nil {
			return nil, false, fmt.Errorf("postgres: scan row: %w", err)
		}
		offers = append(offers, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("postgres: load: %w", err)
	}
	return offers, len(offers) > 0, nil
}

// Save replaces all rows in one transaction
func (ps *PostgresStore) Save(ctx context.Context, offers []*offer.Offer) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM offers"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}

	for i := 0; i < len(offers); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(offers) {
			end = len(offers)
		}
		if err := insertBatch(ctx, tx, i, offers[i:end]); err != nil {
			return fmt.Errorf("postgres: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, offset int, batch []*offer.Offer) error {
	const columns = 8
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*columns)

	for idx, o := range batch {
		base := idx * columns
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		valueArgs = append(valueArgs,
			offset+idx, o.ID, o.Link, o.Address, o.RoomType, o.Cost, o.NRooms, o.Size)
	}

	query := fmt.Sprintf(`
		INSERT INTO offers (position, id, link, address, room_type, cost, n_rooms, size)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

// Close closes the database handle
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
