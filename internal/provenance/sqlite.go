package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

// SaveSQLite writes a snapshot of g to the SQLite database at dbPath, tagged
// with runID. Re-saving the same run replaces nothing and duplicates nothing.
func SaveSQLite(ctx context.Context, g *Graph, dbPath, runID string) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create provenance dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open provenance db: %w", err)
	}
	defer db.Close()

	schema := []string{
		`CREATE TABLE IF NOT EXISTS provenance_nodes (
			run_id TEXT,
			id TEXT,
			kind TEXT,
			label TEXT,
			attrs TEXT,
			PRIMARY KEY (run_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS provenance_edges (
			run_id TEXT,
			source_id TEXT,
			target_id TEXT,
			type TEXT,
			PRIMARY KEY (run_id, source_id, target_id, type)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_edges_source ON provenance_edges(run_id, source_id);`,
	}
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to exec schema query: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nodes, edges := g.Nodes(), g.Edges()
	for _, n := range nodes {
		attrs, _ := json.Marshal(n.Attrs)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO provenance_nodes (run_id, id, kind, label, attrs) VALUES (?, ?, ?, ?, ?)`,
			runID, n.ID, string(n.Kind), n.Label, string(attrs)); err != nil {
			return fmt.Errorf("failed to save node %s: %w", n.ID, err)
		}
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO provenance_edges (run_id, source_id, target_id, type) VALUES (?, ?, ?, ?)`,
			runID, e.From, e.To, string(e.Kind)); err != nil {
			return fmt.Errorf("failed to save edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debug("Provenance graph saved.", "path", dbPath, "nodes", len(nodes), "edges", len(edges))
	return nil
}

// LoadSQLite reads back the graph stored for runID.
func LoadSQLite(ctx context.Context, dbPath, runID string) (*Graph, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open provenance db: %w", err)
	}
	defer db.Close()

	g := New()

	rows, err := db.QueryContext(ctx, `SELECT id, kind, label, attrs FROM provenance_nodes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n Node
		var kind, attrs string
		if err := rows.Scan(&n.ID, &kind, &n.Label, &attrs); err != nil {
			return nil, err
		}
		n.Kind = NodeKind(kind)
		_ = json.Unmarshal([]byte(attrs), &n.Attrs)
		g.AddNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := db.QueryContext(ctx, `SELECT source_id, target_id, type FROM provenance_edges WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var from, to, kind string
		if err := edgeRows.Scan(&from, &to, &kind); err != nil {
			return nil, err
		}
		if err := g.AddEdge(from, to, EdgeKind(kind)); err != nil {
			return nil, err
		}
	}
	return g, edgeRows.Err()
}
