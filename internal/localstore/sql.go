package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/reconectar/internal/database"
)

// SQLStore keeps entries in the local_state table of the row store.
type SQLStore struct {
	db *database.DB
}

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM local_state WHERE state_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to read local state %s: %w", key, err)
	}
	return value, true, nil
}

const upsertQuery = `
	INSERT INTO local_state (state_key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(state_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write local state %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	now := time.Now().UTC()
	return s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		for key, value := range entries {
			if _, err := tx.ExecContext(ctx, upsertQuery, key, value, now); err != nil {
				return fmt.Errorf("failed to write local state %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_state WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete local state %s: %w", key, err)
	}
	return nil
}
