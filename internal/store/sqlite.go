package store

import (
	"context"
	"database/sql"
	"fmt"

	"counsel/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a local SQLite database. Each
// snapshot row is one (conversation, key, value) triple, mirroring the
// flat codec exactly so schema evolution is handled entirely by the
// knowledge decoder.
type SQLiteStore struct {
	db *sql.DB
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS knowledge_snapshots (
	conversation_id TEXT NOT NULL,
	key             TEXT NOT NULL,
	value           TEXT NOT NULL,
	PRIMARY KEY (conversation_id, key)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_conversation
	ON knowledge_snapshots(conversation_id);
`

// NewSQLiteStore opens (or creates) the snapshot database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db %s: %w", path, err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	logging.Get(logging.CategoryStore).Infow("snapshot store opened", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Save implements SnapshotStore. The previous snapshot is replaced in one
// transaction so a crash never leaves a half-written snapshot.
func (s *SQLiteStore) Save(ctx context.Context, conversationID string, kv map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_snapshots WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO knowledge_snapshots (conversation_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range kv {
		if _, err := stmt.ExecContext(ctx, conversationID, key, value); err != nil {
			return fmt.Errorf("failed to write snapshot key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (map[string]string, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM knowledge_snapshots WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, false, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		kv[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed reading snapshot rows: %w", err)
	}
	if len(kv) == 0 {
		return nil, false, nil
	}
	return kv, true, nil
}

// Delete implements SnapshotStore.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_snapshots WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close implements SnapshotStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
