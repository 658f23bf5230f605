// Package gormstore persists execution results with gorm over SQLite.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradebot/internal/execution"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

var ErrNotFound = errors.New("execution not found")

// GormStore stores execution records.
type GormStore struct {
	db *gorm.DB
}

// ExecutionQuery filters ListExecutions. Zero values match everything.
type ExecutionQuery struct {
	Symbol  string
	Action  string
	TraceID string
	Limit   int
	Offset  int
}

// NewGormStore opens (creating if needed) the SQLite file at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.ExecutionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// WAL allows the HTTP readers to overlap the trader's writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying connection pool.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// SaveExecution inserts rec and sets its ID.
func (s *GormStore) SaveExecution(ctx context.Context, rec *model.ExecutionModel) error {
	if rec == nil {
		return errors.New("execution record cannot be nil")
	}
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = time.Now().UnixMilli()
	}
	if rec.ExecutedAt == 0 {
		rec.ExecutedAt = rec.CreatedAtUnix
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetExecution returns ErrNotFound for unknown ids.
func (s *GormStore) GetExecution(ctx context.Context, id int64) (*model.ExecutionModel, error) {
	var rec model.ExecutionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListExecutions returns the newest records first.
func (s *GormStore) ListExecutions(ctx context.Context, q ExecutionQuery) ([]model.ExecutionModel, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	tx := s.db.WithContext(ctx).Model(&model.ExecutionModel{})
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		tx = tx.Where("symbol = ?", sym)
	}
	if action := strings.TrimSpace(q.Action); action != "" {
		tx = tx.Where("action = ?", action)
	}
	if q.TraceID != "" {
		tx = tx.Where("trace_id = ?", q.TraceID)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	var out []model.ExecutionModel
	if err := tx.Order("executed_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ExecutionRecord converts an engine result into its stored form. decision
// may be nil.
func ExecutionRecord(traceID, broker string, dryRun bool, res execution.Result, decision any) (*model.ExecutionModel, error) {
	orders := res.Orders
	if orders == nil {
		orders = []exchange.Order{}
	}
	ordersJSON, err := json.Marshal(orders)
	if err != nil {
		return nil, fmt.Errorf("encode orders: %w", err)
	}
	rec := &model.ExecutionModel{
		TraceID:    traceID,
		Symbol:     strings.ToUpper(res.Symbol),
		Action:     res.Action,
		Broker:     broker,
		DryRun:     dryRun,
		Success:    res.Success(),
		Message:    res.Message,
		EntryPrice: res.EntryPrice,
		Quantity:   res.Quantity,
		StopLoss:   res.StopLoss,
		TakeProfit: res.TakeProfit,
		Orders:     datatypes.JSON(ordersJSON),
	}
	if !res.Timestamp.IsZero() {
		rec.ExecutedAt = res.Timestamp.UnixMilli()
	}
	if decision != nil {
		raw, err := json.Marshal(decision)
		if err != nil {
			return nil, fmt.Errorf("encode decision: %w", err)
		}
		rec.Decision = datatypes.JSON(raw)
	}
	return rec, nil
}
