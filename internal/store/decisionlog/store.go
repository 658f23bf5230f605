// Package decisionlog is the audit trail of every decision received and how
// validation judged it.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("decision log record not found")

// Record is one logged decision.
type Record struct {
	ID        int64    `json:"id"`
	TraceID   string   `json:"trace_id"`
	Timestamp int64    `json:"ts"`
	Source    string   `json:"source"`
	Symbol    string   `json:"symbol"`
	Action    string   `json:"action"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	// RiskReward is nil when the ratio could not be computed.
	RiskReward *float64 `json:"risk_reward_ratio,omitempty"`
	Summary    string   `json:"summary"`
	RawJSON    string   `json:"raw_json"`
	Executed   bool     `json:"executed"`
	Note       string   `json:"note,omitempty"`
}

// Query filters List. Zero values match everything.
type Query struct {
	Symbol  string
	TraceID string
	// Valid restricts to valid (true) or rejected (false) decisions.
	Valid  *bool
	Limit  int
	Offset int
}

// DecisionLogStore writes Records through database/sql on SQLite.
type DecisionLogStore struct {
	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool
}

// NewDecisionLogStore opens the SQLite file at path.
func NewDecisionLogStore(path string) (*DecisionLogStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("decision log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DecisionLogStore{db: db, ownsDB: true}, nil
}

// UseExternalDB switches to a connection owned elsewhere, such as the
// execution store's pool, and migrates it.
func (s *DecisionLogStore) UseExternalDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("external db cannot be nil")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

func (s *DecisionLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var err error
	if s.ownsDB {
		err = s.db.Close()
	}
	s.db = nil
	return err
}

func (s *DecisionLogStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("decision log store not initialized")
	}
	return s.db, nil
}

// Insert writes rec and returns its row id.
func (s *DecisionLogStore) Insert(ctx context.Context, rec Record) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	ts := rec.Timestamp
	if ts == 0 {
		ts = now
	}
	errs := ""
	if len(rec.Errors) > 0 {
		b, err := json.Marshal(rec.Errors)
		if err != nil {
			return 0, err
		}
		errs = string(b)
	}
	var rr sql.NullFloat64
	if rec.RiskReward != nil {
		rr = sql.NullFloat64{Float64: *rec.RiskReward, Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_logs
			(trace_id, ts, source, symbol, action, valid, errors_json, risk_reward, summary, raw_json, executed, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, ts, rec.Source, strings.ToUpper(rec.Symbol), rec.Action,
		boolToInt(rec.Valid), errs, rr, rec.Summary, rec.RawJSON, boolToInt(rec.Executed), rec.Note, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkExecuted flags a logged decision once the engine has run it.
func (s *DecisionLogStore) MarkExecuted(ctx context.Context, id int64, note string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE decision_logs SET executed = 1, note = ? WHERE id = ?`, note, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `SELECT id, trace_id, ts, source, symbol, action, valid, errors_json, risk_reward,
	summary, raw_json, executed, note FROM decision_logs`

// Get returns ErrNotFound for unknown ids.
func (s *DecisionLogStore) Get(ctx context.Context, id int64) (Record, error) {
	db, err := s.conn()
	if err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns the newest records first.
func (s *DecisionLogStore) List(ctx context.Context, q Query) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := buildFilter(q)
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, selectColumns+where+` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns how many records match q, ignoring its paging.
func (s *DecisionLogStore) Count(ctx context.Context, q Query) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	where, args := buildFilter(q)
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_logs`+where, args...).Scan(&n)
	return n, err
}

func buildFilter(q Query) (string, []any) {
	var sb strings.Builder
	var args []any
	sb.WriteString(" WHERE 1=1")
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		sb.WriteString(" AND symbol = ?")
		args = append(args, sym)
	}
	if q.TraceID != "" {
		sb.WriteString(" AND trace_id = ?")
		args = append(args, q.TraceID)
	}
	if q.Valid != nil {
		sb.WriteString(" AND valid = ?")
		args = append(args, boolToInt(*q.Valid))
	}
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		valid    int
		executed int
		errs     sql.NullString
		rr       sql.NullFloat64
		summary  sql.NullString
		raw      sql.NullString
		note     sql.NullString
		source   sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.TraceID, &rec.Timestamp, &source, &rec.Symbol, &rec.Action,
		&valid, &errs, &rr, &summary, &raw, &executed, &note); err != nil {
		return rec, err
	}
	rec.Valid = valid != 0
	rec.Executed = executed != 0
	rec.Source = source.String
	rec.Summary = summary.String
	rec.RawJSON = raw.String
	rec.Note = note.String
	if rr.Valid {
		v := rr.Float64
		rec.RiskReward = &v
	}
	if errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &rec.Errors); err != nil {
			return rec, fmt.Errorf("decode errors_json: %w", err)
		}
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
