// Package store keeps a history of generated decks in Postgres.
package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// DeckRecord describes one generated deck.
type DeckRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	DeckName    string    `json:"deck_name"`
	CardCount   int       `json:"card_count"`
	Tags        []string  `json:"tags"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int       `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDeckRecord summarizes cards into a record. Tags holds each distinct tag
// path once, in first-seen order.
func NewDeckRecord(id, filename, deckName string, cards []flashcard.Card, contentHash string, size int) DeckRecord {
	tags := []string{}
	for _, c := range cards {
		for _, t := range c.Tags {
			if t != "" && !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	return DeckRecord{
		ID:          id,
		Filename:    filename,
		DeckName:    deckName,
		CardCount:   len(cards),
		Tags:        tags,
		ContentHash: contentHash,
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
	}
}

// DB represents the database connection
type DB struct {
	Pool *pgxpool.Pool
}

// New connects and pings the database.
func New(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Initialize creates the deck history table.
func (db *DB) Initialize(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decks (
			id           TEXT PRIMARY KEY,
			filename     TEXT NOT NULL,
			deck_name    TEXT NOT NULL,
			card_count   INTEGER NOT NULL,
			tags         TEXT[] NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create decks table: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS decks_created_at_idx ON decks (created_at DESC)`)
	if err != nil {
		return fmt.Errorf("create decks index: %w", err)
	}
	return nil
}

// SaveDeck inserts or replaces a deck record.
func (db *DB) SaveDeck(ctx context.Context, rec DeckRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO decks (id, filename, deck_name, card_count, tags, content_hash, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			deck_name = EXCLUDED.deck_name,
			card_count = EXCLUDED.card_count,
			tags = EXCLUDED.tags,
			content_hash = EXCLUDED.content_hash,
			size_bytes = EXCLUDED.size_bytes
	`, rec.ID, rec.Filename, rec.DeckName, rec.CardCount, rec.Tags, rec.ContentHash, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save deck %s: %w", rec.ID, err)
	}
	return nil
}

// ListDecks returns the most recent decks, newest first.
func (db *DB) ListDecks(ctx context.Context, limit int) ([]DeckRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, filename, deck_name, card_count, tags, content_hash, size_bytes, created_at
		FROM decks
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decks: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[DeckRecord])
	if err != nil {
		return nil, fmt.Errorf("scan decks: %w", err)
	}
	if records == nil {
		records = []DeckRecord{}
	}
	return records, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.Pool.Close()
}
