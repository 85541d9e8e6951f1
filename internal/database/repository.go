package database

import (
	"context"
	"fmt"
	"time"

	"stock-trading-engine/internal/journal"
)

// Repository provides data access methods over the trade mirror.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ===== TRADE RECORDS =====

// InsertTradeRecord mirrors one journal record.
func (r *Repository) InsertTradeRecord(ctx context.Context, rec journal.TradeRecord) error {
	query := `
		INSERT INTO trade_records (recorded_at, strategy, symbol, action, entry_price, size,
		                           signal_type, confidence, status, order_type, order_id,
		                           order_status, reason, simulated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var orderID interface{}
	if rec.OrderID != 0 {
		orderID = rec.OrderID
	}
	_, err := r.db.Pool.Exec(
		ctx, query,
		rec.Timestamp, rec.Strategy, rec.Symbol, rec.Action, rec.EntryPrice, rec.Size,
		rec.SignalType, rec.Confidence, rec.Status, rec.OrderType, orderID,
		nullIfEmpty(rec.OrderStatus), nullIfEmpty(rec.Reason), rec.Simulated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade record: %w", err)
	}
	return nil
}

// UpdateOrderStatus reflects a late gateway status change onto the most
// recent mirrored row for the order.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID int64, orderStatus, status string) error {
	query := `
		UPDATE trade_records
		SET order_status = $2, status = $3
		WHERE id = (SELECT id FROM trade_records WHERE order_id = $1 ORDER BY recorded_at DESC LIMIT 1)
	`
	_, err := r.db.Pool.Exec(ctx, query, orderID, orderStatus, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// RecentTradeRecords returns the newest limit rows, newest first.
func (r *Repository) RecentTradeRecords(ctx context.Context, limit int) ([]journal.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT recorded_at, strategy, symbol, action, entry_price, size, signal_type,
		       confidence, status, order_type, COALESCE(order_id, 0),
		       COALESCE(order_status, ''), COALESCE(reason, ''), simulated
		FROM trade_records
		ORDER BY recorded_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade records: %w", err)
	}
	defer rows.Close()

	var records []journal.TradeRecord
	for rows.Next() {
		var rec journal.TradeRecord
		if err := rows.Scan(
			&rec.Timestamp, &rec.Strategy, &rec.Symbol, &rec.Action, &rec.EntryPrice,
			&rec.Size, &rec.SignalType, &rec.Confidence, &rec.Status, &rec.OrderType,
			&rec.OrderID, &rec.OrderStatus, &rec.Reason, &rec.Simulated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StrategyDayStats summarizes one strategy's mirrored activity for a day.
type StrategyDayStats struct {
	Strategy string  `json:"strategy"`
	Executed int     `json:"executed"`
	Rejected int     `json:"rejected"`
	Failed   int     `json:"failed"`
	Notional float64 `json:"notional"`
}

// StatsForDay aggregates per-strategy counts for the day containing ts.
func (r *Repository) StatsForDay(ctx context.Context, ts time.Time) ([]StrategyDayStats, error) {
	dayStart := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	query := `
		SELECT strategy,
		       COUNT(*) FILTER (WHERE status = 'EXECUTED'),
		       COUNT(*) FILTER (WHERE status = 'REJECTED'),
		       COUNT(*) FILTER (WHERE status IN ('FAILED', 'ERROR')),
		       COALESCE(SUM(entry_price * size) FILTER (WHERE status = 'EXECUTED'), 0)
		FROM trade_records
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY strategy
		ORDER BY strategy
	`
	rows, err := r.db.Pool.Query(ctx, query, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query day stats: %w", err)
	}
	defer rows.Close()

	var stats []StrategyDayStats
	for rows.Next() {
		var s StrategyDayStats
		if err := rows.Scan(&s.Strategy, &s.Executed, &s.Rejected, &s.Failed, &s.Notional); err != nil {
			return nil, fmt.Errorf("failed to scan day stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
