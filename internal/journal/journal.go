// Package journal persists the trade journal: one record per order
// submission attempt, kept as a trailing window in data/trades.json.
// Appends are totally ordered behind a single mutex, and every write
// rewrites the file atomically via a temp file rename.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ===== TRADE RECORD =====

// Trade record statuses. REJECTED records never reached the gateway; ERROR
// records failed in transit; the rest mirror the gateway's answer.
const (
	StatusPending   = "PENDING"
	StatusExecuted  = "EXECUTED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusError     = "ERROR"
	StatusRejected  = "REJECTED"
)

// TradeRecord captures one order submission attempt, terminal or not.
type TradeRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Strategy    string    `json:"strategy"`
	Symbol      string    `json:"symbol"`
	Action      string    `json:"action"`
	EntryPrice  float64   `json:"entry_price"`
	Size        int       `json:"size"`
	SignalType  string    `json:"signal_type"`
	Confidence  float64   `json:"confidence"`
	Status      string    `json:"status"`
	OrderType   string    `json:"order_type"`
	OrderID     int64     `json:"order_id,omitempty"`
	OrderStatus string    `json:"order_status,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Simulated   bool      `json:"simulated,omitempty"`
}

// ErrCorrupt indicates the journal file exists but cannot be parsed. The
// controller treats this as fatal rather than silently dropping history.
var ErrCorrupt = errors.New("journal: corrupt trade journal")

// DefaultMaxRecords is the trailing window persisted to disk.
const DefaultMaxRecords = 100

// ===== JOURNAL =====

// Journal is the append-only trade journal.
type Journal struct {
	mu         sync.Mutex
	path       string
	maxRecords int
	records    []TradeRecord
	appended   int64
	onAppend   func(TradeRecord)
	logger     zerolog.Logger
}

// New builds a journal backed by path (conventionally data/trades.json).
func New(path string, logger zerolog.Logger) *Journal {
	return &Journal{
		path:       path,
		maxRecords: DefaultMaxRecords,
		logger:     logger.With().Str("component", "journal").Logger(),
	}
}

// SetOnAppend registers a hook invoked after every successful append, e.g.
// to mirror records into the database or broadcast them to API clients.
func (j *Journal) SetOnAppend(fn func(TradeRecord)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onAppend = fn
}

// Load reads the persisted window. A missing file is an empty journal; an
// unparseable file is ErrCorrupt.
func (j *Journal) Load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		j.records = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read trade journal: %w", err)
	}

	var records []TradeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	j.records = records
	j.logger.Info().Int("records", len(records)).Str("path", j.path).Msg("Trade journal loaded")
	return nil
}

// Append adds a record, trims to the trailing window, and persists.
func (j *Journal) Append(rec TradeRecord) error {
	j.mu.Lock()
	j.records = append(j.records, rec)
	if len(j.records) > j.maxRecords {
		j.records = j.records[len(j.records)-j.maxRecords:]
	}
	j.appended++
	hook := j.onAppend
	err := j.persistLocked()
	j.mu.Unlock()

	if err != nil {
		j.logger.Error().Err(err).Msg("Trade journal write failed")
		return err
	}
	if hook != nil {
		hook(rec)
	}
	return nil
}

// UpdateOrderStatus patches the newest record carrying orderID with a fresh
// gateway status and, when the caller maps one, a new record status. Used
// when fills land asynchronously on the order stream.
func (j *Journal) UpdateOrderStatus(orderID int64, orderStatus, status string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.records) - 1; i >= 0; i-- {
		if j.records[i].OrderID != orderID {
			continue
		}
		j.records[i].OrderStatus = orderStatus
		if status != "" {
			j.records[i].Status = status
		}
		if err := j.persistLocked(); err != nil {
			j.logger.Error().Err(err).Msg("Trade journal write failed")
		}
		return true
	}
	return false
}

// All returns a copy of the in-memory window, oldest first.
func (j *Journal) All() []TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]TradeRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Recent returns up to n of the newest records, oldest first.
func (j *Journal) Recent(n int) []TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n > len(j.records) {
		n = len(j.records)
	}
	out := make([]TradeRecord, n)
	copy(out, j.records[len(j.records)-n:])
	return out
}

// Len returns the size of the persisted window.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// TotalAppended returns the number of appends since startup, which keeps
// growing after the window starts trimming.
func (j *Journal) TotalAppended() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appended
}

func (j *Journal) persistLocked() error {
	data, err := json.MarshalIndent(j.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trade journal: %w", err)
	}
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trade journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace trade journal: %w", err)
	}
	return nil
}
