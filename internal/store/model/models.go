// Package model holds the gorm models persisted by the execution store.
package model

import (
	"gorm.io/datatypes"
)

// ExecutionModel is one engine call as persisted. Orders keeps the broker
// orders as JSON, including those placed before a failure.
type ExecutionModel struct {
	ID            int64          `gorm:"column:id;primaryKey" json:"id"`
	TraceID       string         `gorm:"column:trace_id;index" json:"trace_id"`
	Symbol        string         `gorm:"column:symbol;index:idx_executions_symbol_ts,priority:1" json:"symbol"`
	Action        string         `gorm:"column:action" json:"action"`
	Broker        string         `gorm:"column:broker" json:"broker"`
	DryRun        bool           `gorm:"column:dry_run" json:"dry_run"`
	Success       bool           `gorm:"column:success" json:"success"`
	Message       string         `gorm:"column:message" json:"message"`
	EntryPrice    float64        `gorm:"column:entry_price" json:"entry_price"`
	Quantity      float64        `gorm:"column:quantity" json:"quantity"`
	StopLoss      float64        `gorm:"column:stop_loss" json:"stop_loss"`
	TakeProfit    float64        `gorm:"column:take_profit" json:"take_profit"`
	Orders        datatypes.JSON `gorm:"column:orders_json;type:TEXT" json:"orders"`
	Decision      datatypes.JSON `gorm:"column:decision_json;type:TEXT" json:"decision"`
	ExecutedAt    int64          `gorm:"column:executed_at;index:idx_executions_symbol_ts,priority:2" json:"executed_at"`
	CreatedAtUnix int64          `gorm:"column:created_at" json:"-"`
}

func (ExecutionModel) TableName() string { return "executions" }
