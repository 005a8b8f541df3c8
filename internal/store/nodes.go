package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const (
	// sqliteMaxVariables is the SQLite bound-variable ceiling
	// (SQLITE_MAX_VARIABLE_NUMBER).
	sqliteMaxVariables = 32766

	// nodeColumns is the number of bound variables per inserted row.
	nodeColumns = 4
)

const nodeSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id       TEXT PRIMARY KEY,
	doc_id   TEXT NOT NULL,
	text     TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_doc_id ON nodes(doc_id);
`

// SQLiteNodeStore persists node payloads in a SQLite database inside
// the collection directory.
type SQLiteNodeStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewSQLiteNodeStore opens (creating if needed) the node database at
// path.
func NewSQLiteNodeStore(path string) (*SQLiteNodeStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open node database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(nodeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteNodeStore{db: db, path: path}, nil
}

// Put inserts or replaces nodes, chunked to respect MaxBatchSize.
func (s *SQLiteNodeStore) Put(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("node store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	maxRows := s.MaxBatchSize()
	for start := 0; start < len(nodes); start += maxRows {
		end := start + maxRows
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := insertNodes(ctx, tx, nodes[start:end]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertNodes(ctx context.Context, tx *sql.Tx, nodes []*Node) error {
	var sb strings.Builder
	sb.WriteString("INSERT OR REPLACE INTO nodes (id, doc_id, text, metadata) VALUES ")

	args := make([]any, 0, len(nodes)*nodeColumns)
	for i, node := range nodes {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?)")

		meta, err := json.Marshal(node.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", node.ID, err)
		}
		args = append(args, node.ID, node.DocID, node.Text, string(meta))
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert nodes: %w", err)
	}
	return nil
}

// Get retrieves nodes by ID, preserving input order. Missing IDs are
// skipped.
func (s *SQLiteNodeStore) Get(ctx context.Context, ids []string) ([]*Node, error) {
	if len(ids) == 0 {
		return []*Node{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("node store is closed")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := "SELECT id, doc_id, text, metadata FROM nodes WHERE id IN (" + placeholders + ")"

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Node, len(ids))
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		byID[node.ID] = node
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	result := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := byID[id]; ok {
			result = append(result, node)
		}
	}
	return result, nil
}

// GetAll returns every stored node.
func (s *SQLiteNodeStore) GetAll(ctx context.Context) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("node store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, doc_id, text, metadata FROM nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var result []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return result, nil
}

func scanNode(rows *sql.Rows) (*Node, error) {
	var node Node
	var meta string
	if err := rows.Scan(&node.ID, &node.DocID, &node.Text, &meta); err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &node.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", node.ID, err)
	}
	return &node, nil
}

// Count returns the number of stored nodes.
func (s *SQLiteNodeStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("node store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// Clear removes all nodes.
func (s *SQLiteNodeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("node store is closed")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}
	return nil
}

// MaxBatchSize advertises the largest Put batch one multi-row insert
// can hold without exceeding the bound-variable ceiling.
func (s *SQLiteNodeStore) MaxBatchSize() int {
	return sqliteMaxVariables / nodeColumns
}

// Close closes the database.
func (s *SQLiteNodeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ NodeStore = (*SQLiteNodeStore)(nil)
