package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	getQuery    = `SELECT value FROM kv_store WHERE key = $1`
	upsertQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM kv_store WHERE key = $1`
)

// KVStore implements repository.KVStore on the kv_store table.
type KVStore struct {
	pool database.DBTX
}

// NewKVStore creates a PostgreSQL-backed store.
func NewKVStore(pool database.DBTX) *KVStore {
	return &KVStore{pool: pool}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "kv.get", getQuery)
	defer func() { end(err) }()

	var value []byte
	if err := s.pool.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "kv.set", upsertQuery)
	defer func() { end(err) }()

	if _, err := s.pool.Exec(ctx, upsertQuery, key, value); err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key succeeds.
func (s *KVStore) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "kv.remove", deleteQuery)
	defer func() { end(err) }()

	if _, err := s.pool.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
