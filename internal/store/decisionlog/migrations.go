package decisionlog

import (
	"database/sql"
	"fmt"
	"strings"
)

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL,
			source TEXT,
			symbol TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			valid INTEGER NOT NULL DEFAULT 0,
			errors_json TEXT,
			risk_reward REAL,
			summary TEXT,
			raw_json TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_symbol_ts ON decision_logs(symbol, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_trace ON decision_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("decision log schema: %w", err)
		}
	}
	return ensureColumns(db)
}

// ensureColumns upgrades databases created before executed/note existed.
func ensureColumns(db *sql.DB) error {
	cols := []struct{ column, typ string }{
		{"executed", "INTEGER NOT NULL DEFAULT 0"},
		{"note", "TEXT"},
	}
	for _, col := range cols {
		if err := addColumnIfMissing(db, "decision_logs", col.column, col.typ); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	exists := false
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}
