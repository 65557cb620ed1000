// Package store persists normalized event chunks in a SQLite-backed document
// table, partitioned by the dd-mm-yyyy date key.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"whatson/internal/model"
)

// DefaultPageSize bounds how many documents one delete batch touches.
const DefaultPageSize = 5

const schema = `
CREATE TABLE IF NOT EXISTS cache_documents (
	doc_id    TEXT PRIMARY KEY,
	partition TEXT NOT NULL,
	payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_documents_partition ON cache_documents(partition);
`

// document is the persisted shape of one chunk.
type document struct {
	Events []model.Event `json:"events"`
}

// Store is a document-store handle. One Store is constructed at process start
// and passed down explicitly; Close ties teardown to process stop.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite store at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CheckPartition reads all documents under the given partition key and
// returns the flattened union of their chunk payloads. The second return
// value reports whether any document existed: (nil, false, nil) means the
// partition is absent, which is a first-class outcome and not an error.
// Chunk order is whatever the store yields; callers must not rely on it.
func (s *Store) CheckPartition(ctx context.Context, key string) ([]model.Event, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM cache_documents WHERE partition = ?`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query partition %q: %w", key, err)
	}
	defer rows.Close()

	var (
		events []model.Event
		found  bool
	)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, false, fmt.Errorf("scan document: %w", err)
		}
		found = true

		var doc document
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, false, fmt.Errorf("decode document in partition %q: %w", key, err)
		}
		events = append(events, doc.Events...)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate partition %q: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return events, true, nil
}

// PersistChunks writes each chunk as an independent document under key, one
// insert per chunk. The writes are not atomic as a set; a failure may leave
// a subset persisted, which is acceptable for a best-effort cache.
func (s *Store) PersistChunks(ctx context.Context, key string, chunks [][]model.Event) error {
	for i, chunk := range chunks {
		payload, err := json.Marshal(document{Events: chunk})
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", i, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO cache_documents (doc_id, partition, payload) VALUES (?, ?, ?)`,
			uuid.NewString(), key, string(payload))
		if err != nil {
			return fmt.Errorf("insert chunk %d into partition %q: %w", i, key, err)
		}
	}
	return nil
}

// DeletePartition removes every document under key in pages of at most
// pageSize, each page deleted in its own transaction. The loop terminates on
// the first empty page, so calling it on an absent partition is a no-op.
// Any query or commit failure aborts the operation and is returned to the
// caller. Returns the number of documents deleted.
func (s *Store) DeletePartition(ctx context.Context, key string, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	deleted := 0
	for {
		ids, err := s.pageIDs(ctx, key, pageSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}
		if err := s.deleteBatch(ctx, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)
	}
}

// pageIDs fetches up to pageSize document IDs under key, ordered by the
// stable primary key so successive pages never revisit a document.
func (s *Store) pageIDs(ctx context.Context, key string, pageSize int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id FROM cache_documents WHERE partition = ? ORDER BY doc_id LIMIT ?`,
		key, pageSize)
	if err != nil {
		return nil, fmt.Errorf("query delete page for %q: %w", key, err)
	}
	defer rows.Close()

	ids := make([]string, 0, pageSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delete page for %q: %w", key, err)
	}
	return ids, nil
}

// deleteBatch removes the given documents in one transaction.
func (s *Store) deleteBatch(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete batch: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_documents WHERE doc_id IN (`+placeholders+`)`, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Partitions lists the distinct partition keys currently present.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT partition FROM cache_documents ORDER BY partition`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return keys, nil
}
