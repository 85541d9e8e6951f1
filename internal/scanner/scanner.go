// Package scanner runs the preselect batch scan: signal generation across
// the preselect universe, persisted as a CSV sidecar per scan. It observes
// and reports; nothing here gates order flow.
package scanner

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/internal/strategy"
)

// BatchRunner generates signals for a symbol set in one batch. Satisfied by
// the engine host's RunOnce.
type BatchRunner interface {
	RunOnce(ctx context.Context, symbols []string, now time.Time) map[string][]strategy.Signal
}

// filePrefix names the CSV sidecars; old ones are pruned past the retention
// count.
const filePrefix = "preselect_signals_"

// DefaultKeep is the sidecar retention when the caller passes 0.
const DefaultKeep = 10

// Row is one generated signal flattened for the sidecar and the API.
type Row struct {
	GeneratedAt time.Time `json:"generated_at"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Type        string    `json:"signal_type"`
	Action      string    `json:"action"`
	Price       float64   `json:"price"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
}

// Result summarizes one scan.
type Result struct {
	ScanID         string        `json:"scan_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int           `json:"symbols_scanned"`
	Rows           []Row         `json:"rows"`
	File           string        `json:"file,omitempty"`
}

// Scanner drives batch scans and owns the sidecar directory.
type Scanner struct {
	runner BatchRunner
	dir    string
	keep   int
	logger zerolog.Logger

	mu         sync.RWMutex
	lastResult *Result
}

// New creates a scanner writing sidecars into dir, keeping the newest keep
// files.
func New(runner BatchRunner, dir string, keep int, logger zerolog.Logger) *Scanner {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Scanner{
		runner: runner,
		dir:    dir,
		keep:   keep,
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

// Run executes one batch scan over symbols and persists the sidecar. A scan
// that generates nothing writes no file.
func (sc *Scanner) Run(ctx context.Context, symbols []string, now time.Time) error {
	started := time.Now()
	scanID := fmt.Sprintf("scan-%d", now.Unix())

	generated := sc.runner.RunOnce(ctx, symbols, now)

	rows := make([]Row, 0, len(generated))
	for _, sigs := range generated {
		for _, sig := range sigs {
			rows = append(rows, Row{
				GeneratedAt: sig.GeneratedAt,
				Symbol:      sig.Symbol,
				Strategy:    sig.StrategyID,
				Type:        sig.Type,
				Action:      sig.Action,
				Price:       sig.ReferencePrice,
				Confidence:  sig.Confidence,
				Reason:      sig.Reason,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Confidence != rows[j].Confidence {
			return rows[i].Confidence > rows[j].Confidence
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	result := &Result{
		ScanID:         scanID,
		StartedAt:      started,
		SymbolsScanned: len(symbols),
		Rows:           rows,
	}

	if len(rows) > 0 {
		file, err := sc.writeSidecar(rows, now)
		if err != nil {
			return fmt.Errorf("scanner: %w", err)
		}
		result.File = file
		sc.pruneOld()
	}

	result.Duration = time.Since(started)
	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()

	sc.logger.Info().
		Str("scan_id", scanID).
		Int("symbols", len(symbols)).
		Int("signals", len(rows)).
		Dur("elapsed", result.Duration).
		Msg("Preselect scan complete")
	return nil
}

// LastResult returns the most recent scan summary, or nil before the first
// scan.
func (sc *Scanner) LastResult() *Result {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

func (sc *Scanner) writeSidecar(rows []Row, now time.Time) (string, error) {
	if err := os.MkdirAll(sc.dir, 0o755); err != nil {
		return "", err
	}
	name := filePrefix + now.Format("20060102_150405") + ".csv"
	path := filepath.Join(sc.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"generated_at", "symbol", "strategy", "signal_type", "action", "price", "confidence", "reason"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, row := range rows {
		rec := []string{
			row.GeneratedAt.Format(time.RFC3339),
			row.Symbol,
			row.Strategy,
			row.Type,
			row.Action,
			strconv.FormatFloat(row.Price, 'f', 2, 64),
			strconv.FormatFloat(row.Confidence, 'f', 2, 64),
			row.Reason,
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// pruneOld drops the oldest sidecars past the retention count. Name order is
// chronological given the timestamped filenames.
func (sc *Scanner) pruneOld() {
	matches, err := filepath.Glob(filepath.Join(sc.dir, filePrefix+"*.csv"))
	if err != nil || len(matches) <= sc.keep {
		return
	}
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-sc.keep] {
		if err := os.Remove(path); err != nil {
			sc.logger.Warn().Err(err).Str("file", path).Msg("Sidecar prune failed")
		}
	}
}
