package strategy

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/indicators"
	"stock-trading-engine/internal/marketdata"
)

// symbolSeed derives a stable per-symbol RNG seed so model fits reproduce
// across restarts.
func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

// ===== A15: COINTEGRATION SPREAD =====

// PairsSpread trades the residual of a rolling linear fit: when the close
// sits far from its own regression line the strategy bets on convergence.
// The host feeds one symbol per call, so the fit line stands in for the
// hedge leg of a classic pairs trade.
type PairsSpread struct {
	cfg *config.StrategyConfig
}

func newPairsSpread(cfg *config.StrategyConfig) *PairsSpread {
	// Convergence plays out over hours, so re-arm slower than the generic
	// default unless the operator chose otherwise.
	if cfg.SignalCooldownHours == 0 && cfg.SignalCooldownMinutes <= 5 {
		cfg.SignalCooldownMinutes = 60
	}
	return &PairsSpread{cfg: cfg}
}

func (s *PairsSpread) ID() string   { return "a15" }
func (s *PairsSpread) Name() string { return "Cointegration Spread" }

// residualZ returns the z-score of the last close against the regression
// line fitted over the trailing window, and the residual std as a fraction
// of price.
func (s *PairsSpread) residualZ(closes []float64) (z, relStd float64, ok bool) {
	window := s.cfg.IntParam("spread_window", 60)
	if len(closes) < window {
		return 0, 0, false
	}
	xs := closes[len(closes)-window:]
	fit := indicators.LinearRegression(xs)
	if math.IsNaN(fit.Slope) {
		return 0, 0, false
	}
	residuals := make([]float64, window)
	var mean float64
	for i, c := range xs {
		residuals[i] = c - (fit.Intercept + fit.Slope*float64(i))
		mean += residuals[i]
	}
	mean /= float64(window)
	var variance float64
	for _, r := range residuals {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(window))
	if std == 0 {
		return 0, 0, false
	}
	return (residuals[window-1] - mean) / std, std / xs[window-1], true
}

func (s *PairsSpread) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	z, relStd, ok := s.residualZ(bars.Closes())
	if !ok || relStd < s.cfg.Param("min_residual_vol", 0.001) {
		return nil
	}
	price := bars.Last().Close
	entry := s.cfg.Param("entry_threshold", 2.0)

	if z <= -entry {
		conf := clampConf(0.5+(math.Abs(z)-entry)/4+0.1, 0.5)
		return []Signal{entrySignal(symbol, "SPREAD_DIVERGENCE_LONG", ActionBuy, price, conf,
			fmt.Sprintf("residual z %.2f below -%.1f", z, entry),
			bars, map[string]interface{}{"spread_z": z})}
	}
	if z >= entry {
		conf := clampConf(0.5+(z-entry)/4+0.1, 0.5)
		return []Signal{entrySignal(symbol, "SPREAD_DIVERGENCE_SHORT", ActionSell, price, conf,
			fmt.Sprintf("residual z %.2f above +%.1f", z, entry),
			bars, map[string]interface{}{"spread_z": z})}
	}
	return nil
}

func (s *PairsSpread) CheckExitConditions(symbol string, pos Position, price float64, now time.Time, bars marketdata.BarSeries) *Signal {
	if sig := BaseExitCheck(s.cfg, pos, price, now); sig != nil {
		return sig
	}
	if bars.Empty() {
		return nil
	}
	z, _, ok := s.residualZ(bars.Closes())
	if !ok {
		return nil
	}
	if math.Abs(z) <= s.cfg.Param("exit_threshold", 0.5) {
		return exitSignal(pos, price, "SPREAD_CONVERGED", 0.75,
			fmt.Sprintf("residual z back to %.2f", z))
	}
	return nil
}

// ===== A18: ISOLATION-FOREST ANOMALY =====

const anomalyModelVersion = 1

// anomalyModel is the persisted fit state. TrainedAt carries the timestamp
// of the last training bar, so the retrain clock follows market data rather
// than the host's wall clock.
type anomalyModel struct {
	Symbol    string                      `json:"symbol"`
	Version   int                         `json:"version"`
	TrainedAt time.Time                   `json:"trained_at"`
	Forest    *indicators.IsolationForest `json:"forest"`
}

// Anomaly scores each bar with an isolation forest over return, volume,
// range and gap features, and fades outliers: an anomalous drop is bought,
// an anomalous spike is sold. Fitted forests are written as JSON keyed by
// symbol and model version; a model older than retrain_days relative to the
// newest bar is refitted. The long re-arm period comes from the cooldown
// config, defaulted here to seven days.
type Anomaly struct {
	cfg      *config.StrategyConfig
	modelDir string

	mu     sync.Mutex
	models map[string]*anomalyModel
}

func newAnomaly(cfg *config.StrategyConfig) *Anomaly {
	if cfg.SignalCooldownHours == 0 && cfg.SignalCooldownMinutes <= 5 {
		cfg.SignalCooldownHours = 7 * 24
	}
	return &Anomaly{
		cfg:      cfg,
		modelDir: filepath.Join("data", "models"),
		models:   make(map[string]*anomalyModel),
	}
}

func (s *Anomaly) ID() string   { return "a18" }
func (s *Anomaly) Name() string { return "Anomaly Detector" }

// SetModelDir overrides where fitted models are persisted.
func (s *Anomaly) SetModelDir(dir string) { s.modelDir = dir }

func (s *Anomaly) modelPath(symbol string) string {
	return filepath.Join(s.modelDir, fmt.Sprintf("anomaly_%s_v%d.json", symbol, anomalyModelVersion))
}

// anomalyFeatures builds one row per bar from index 1 on: simple return,
// volume ratio against the trailing 20-bar mean, bar range over close, and
// the open gap against the prior close.
func anomalyFeatures(bars marketdata.BarSeries) [][]float64 {
	rows := make([][]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if prev.Close == 0 || cur.Close == 0 {
			rows = append(rows, []float64{0, 1, 0, 0})
			continue
		}
		volMean := 0.0
		n := 0
		for j := i - 20; j < i; j++ {
			if j >= 0 {
				volMean += bars[j].Volume
				n++
			}
		}
		volRatio := 1.0
		if n > 0 && volMean > 0 {
			volRatio = cur.Volume / (volMean / float64(n))
		}
		rows = append(rows, []float64{
			cur.Close/prev.Close - 1,
			volRatio,
			(cur.High - cur.Low) / cur.Close,
			cur.Open/prev.Close - 1,
		})
	}
	return rows
}

// model returns a fitted forest for the symbol, loading from disk or
// refitting as needed. Persistence failures are non-fatal: the fit lives on
// in memory for the rest of the run.
func (s *Anomaly) model(symbol string, bars marketdata.BarSeries, rows [][]float64) *anomalyModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.models[symbol]
	if m == nil {
		m = s.loadModel(symbol)
	}
	asOf := bars.Last().Timestamp
	retrainAfter := time.Duration(s.cfg.Param("retrain_days", 30)) * 24 * time.Hour

	stale := m == nil || m.Version != anomalyModelVersion ||
		m.Forest == nil || !m.Forest.Fitted() ||
		asOf.Sub(m.TrainedAt) > retrainAfter
	if stale {
		forest := indicators.NewIsolationForest(
			s.cfg.IntParam("num_trees", 100),
			s.cfg.IntParam("sample_size", 256),
			symbolSeed(symbol))
		forest.Fit(rows[:len(rows)-1])
		m = &anomalyModel{Symbol: symbol, Version: anomalyModelVersion, TrainedAt: asOf, Forest: forest}
		s.saveModel(m)
	}
	s.models[symbol] = m
	return m
}

func (s *Anomaly) loadModel(symbol string) *anomalyModel {
	raw, err := os.ReadFile(s.modelPath(symbol))
	if err != nil {
		return nil
	}
	var m anomalyModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return &m
}

func (s *Anomaly) saveModel(m *anomalyModel) {
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := os.MkdirAll(s.modelDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(s.modelPath(m.Symbol), raw, 0o644)
}

func (s *Anomaly) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	minBars := s.cfg.MinDataPoints
	if minBars < 60 {
		minBars = 60
	}
	if len(bars) < minBars {
		return nil
	}
	rows := anomalyFeatures(bars)
	if len(rows) < 2 {
		return nil
	}
	m := s.model(symbol, bars, rows)
	if m == nil || m.Forest == nil || !m.Forest.Fitted() {
		return nil
	}

	last := rows[len(rows)-1]
	score := m.Forest.Score(last)
	threshold := s.cfg.Param("anomaly_threshold", 0.65)
	if score < threshold {
		return nil
	}

	price := bars.Last().Close
	ret := last[0]
	extra := map[string]interface{}{"anomaly_score": score, "bar_return": ret}
	conf := clampConf(score, 0.65)

	if ret < 0 {
		return []Signal{entrySignal(symbol, "ANOMALY_DROP", ActionBuy, price, conf,
			fmt.Sprintf("anomalous drop, score %.2f, return %.3f%%", score, ret*100),
			bars, extra)}
	}
	if ret > 0 {
		return []Signal{entrySignal(symbol, "ANOMALY_SPIKE", ActionSell, price, conf,
			fmt.Sprintf("anomalous spike, score %.2f, return %.3f%%", score, ret*100),
			bars, extra)}
	}
	return nil
}

// ===== A25: RELATIVE STRENGTH RATING =====

// rsRatingOf maps weighted rate-of-change over four trailing windows onto a
// 0..100 scale, front-loading the most recent window the way quarterly RS
// ratings do.
func rsRatingOf(r20, r40, r60, r80 float64) float64 {
	if math.IsNaN(r20) || math.IsNaN(r40) || math.IsNaN(r60) || math.IsNaN(r80) {
		return math.NaN()
	}
	composite := 0.4*r20 + 0.2*r40 + 0.2*r60 + 0.2*r80
	return 100 * logistic(composite, 0.15)
}

// RSRating rates price strength on a 0..100 scale and trades the band
// crossings: through 80 from below is strength worth owning, through 30
// from above is weakness worth selling.
type RSRating struct {
	cfg *config.StrategyConfig
}

func newRSRating(cfg *config.StrategyConfig) *RSRating {
	return &RSRating{cfg: cfg}
}

func (s *RSRating) ID() string   { return "a25" }
func (s *RSRating) Name() string { return "RS Rating" }

func (s *RSRating) ratings(closes []float64) (prev, last float64) {
	r20 := indicators.ROC(closes, 20)
	r40 := indicators.ROC(closes, 40)
	r60 := indicators.ROC(closes, 60)
	r80 := indicators.ROC(closes, 80)
	prev = rsRatingOf(indicators.Prev(r20), indicators.Prev(r40), indicators.Prev(r60), indicators.Prev(r80))
	last = rsRatingOf(indicators.Last(r20), indicators.Last(r40), indicators.Last(r60), indicators.Last(r80))
	return prev, last
}

func (s *RSRating) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	if len(bars) < 82 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	prev, last := s.ratings(bars.Closes())
	if math.IsNaN(prev) || math.IsNaN(last) {
		return nil
	}
	price := bars.Last().Close
	strong := s.cfg.Param("strong_threshold", 80)
	weak := s.cfg.Param("weak_threshold", 30)

	if prev < strong && last >= strong {
		conf := clampConf(0.5+(last-strong)/100+0.1, 0.5)
		return []Signal{entrySignal(symbol, "RS_RATING_STRONG", ActionBuy, price, conf,
			fmt.Sprintf("RS rating rose to %.0f", last),
			bars, map[string]interface{}{"rs_rating": last})}
	}
	if prev > weak && last <= weak {
		conf := clampConf(0.5+(weak-last)/100+0.1, 0.5)
		return []Signal{entrySignal(symbol, "RS_RATING_WEAK", ActionSell, price, conf,
			fmt.Sprintf("RS rating fell to %.0f", last),
			bars, map[string]interface{}{"rs_rating": last})}
	}
	return nil
}

// ===== A30: LINEAR REGRESSION TREND =====

// LinRegStrategy enters when the regression channel turns decisively: the
// fitted slope over the window clears a normalized threshold with a tight
// fit, where the prior bar's window did not.
type LinRegStrategy struct {
	cfg *config.StrategyConfig
}

func newLinRegStrategy(cfg *config.StrategyConfig) *LinRegStrategy {
	return &LinRegStrategy{cfg: cfg}
}

func (s *LinRegStrategy) ID() string   { return "a30" }
func (s *LinRegStrategy) Name() string { return "Linear Regression" }

// normSlope expresses the fitted slope as the total regression move across
// the window divided by the last price.
func normSlope(xs []float64, window int) (slope, r2 float64, ok bool) {
	if len(xs) < window {
		return 0, 0, false
	}
	seg := xs[len(xs)-window:]
	fit := indicators.LinearRegression(seg)
	if math.IsNaN(fit.Slope) || seg[window-1] == 0 {
		return 0, 0, false
	}
	return fit.Slope * float64(window) / seg[window-1], fit.R2, true
}

func (s *LinRegStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	window := s.cfg.IntParam("window", 20)
	if len(bars) < window+1 || len(bars) < s.cfg.MinDataPoints {
		return nil
	}
	closes := bars.Closes()
	price := bars.Last().Close
	threshold := s.cfg.Param("slope_threshold", 0.01)
	r2Min := s.cfg.Param("r2_min", 0.7)

	slope, r2, ok := normSlope(closes, window)
	if !ok || r2 < r2Min {
		return nil
	}
	prevSlope, prevR2, prevOK := normSlope(closes[:len(closes)-1], window)

	if slope >= threshold && (!prevOK || prevSlope < threshold || prevR2 < r2Min) {
		conf := clampConf(0.5+r2/4+math.Min(slope*5, 0.15), 0.5)
		return []Signal{entrySignal(symbol, "LINREG_TREND_UP", ActionBuy, price, conf,
			fmt.Sprintf("regression slope %.2f%%/window, R2 %.2f", slope*100, r2),
			bars, map[string]interface{}{"norm_slope": slope, "r2": r2})}
	}
	if slope <= -threshold && (!prevOK || prevSlope > -threshold || prevR2 < r2Min) {
		conf := clampConf(0.5+r2/4+math.Min(-slope*5, 0.15), 0.5)
		return []Signal{entrySignal(symbol, "LINREG_TREND_DOWN", ActionSell, price, conf,
			fmt.Sprintf("regression slope %.2f%%/window, R2 %.2f", slope*100, r2),
			bars, map[string]interface{}{"norm_slope": slope, "r2": r2})}
	}
	return nil
}

// ===== A31: MLP FORECAST =====

type mlpModel struct {
	net     *indicators.MLPRegressor
	fitBars int
}

// MLPStrategy forecasts the next-bar return with a small seeded perceptron
// over engineered features and trades forecasts that clear a band. Models
// fit lazily per symbol and refit every retrain_bars new bars; a fixed
// per-symbol seed keeps predictions reproducible.
type MLPStrategy struct {
	cfg *config.StrategyConfig

	mu     sync.Mutex
	models map[string]*mlpModel
}

func newMLPStrategy(cfg *config.StrategyConfig) *MLPStrategy {
	return &MLPStrategy{cfg: cfg, models: make(map[string]*mlpModel)}
}

func (s *MLPStrategy) ID() string   { return "a31" }
func (s *MLPStrategy) Name() string { return "MLP Forecast" }

// mlpFeatures builds the model input for bar index i: one- and five-bar
// returns, scaled RSI, excess volume ratio, and position inside the
// Bollinger band.
func mlpFeatures(bars marketdata.BarSeries, rsi []float64, bb *indicators.BollingerBands, i int) []float64 {
	ret1, ret5 := 0.0, 0.0
	if i >= 1 && bars[i-1].Close != 0 {
		ret1 = bars[i].Close/bars[i-1].Close - 1
	}
	if i >= 5 && bars[i-5].Close != 0 {
		ret5 = bars[i].Close/bars[i-5].Close - 1
	}
	r := rsi[i]
	if math.IsNaN(r) {
		r = 50
	}
	volMean, n := 0.0, 0
	for j := i - 20; j < i; j++ {
		if j >= 0 {
			volMean += bars[j].Volume
			n++
		}
	}
	volRatio := 1.0
	if n > 0 && volMean > 0 {
		volRatio = bars[i].Volume / (volMean / float64(n))
	}
	bbPos := 0.0
	if !math.IsNaN(bb.Upper[i]) && bb.Upper[i] > bb.Lower[i] {
		bbPos = (bars[i].Close - bb.Middle[i]) / (bb.Upper[i] - bb.Lower[i]) * 2
	}
	return []float64{ret1 * 100, ret5 * 100, r/100 - 0.5, volRatio - 1, bbPos}
}

func (s *MLPStrategy) network(symbol string, bars marketdata.BarSeries, rsi []float64, bb *indicators.BollingerBands) *indicators.MLPRegressor {
	s.mu.Lock()
	defer s.mu.Unlock()

	retrain := s.cfg.IntParam("retrain_bars", 100)
	m := s.models[symbol]
	if m != nil && len(bars)-m.fitBars < retrain {
		return m.net
	}

	start := 25
	maxSamples := s.cfg.IntParam("max_samples", 500)
	if len(bars)-1-start > maxSamples {
		start = len(bars) - 1 - maxSamples
	}
	var samples [][]float64
	var targets []float64
	for i := start; i < len(bars)-1; i++ {
		if bars[i].Close == 0 {
			continue
		}
		samples = append(samples, mlpFeatures(bars, rsi, bb, i))
		targets = append(targets, (bars[i+1].Close/bars[i].Close-1)*100)
	}
	if len(samples) < 30 {
		return nil
	}
	net := indicators.NewMLPRegressor(5, s.cfg.IntParam("hidden_units", 8), symbolSeed(symbol))
	net.Fit(samples, targets)
	s.models[symbol] = &mlpModel{net: net, fitBars: len(bars)}
	return net
}

func (s *MLPStrategy) GenerateSignals(symbol string, bars marketdata.BarSeries, ind marketdata.IndicatorSet) []Signal {
	minBars := s.cfg.MinDataPoints
	if minBars < 60 {
		minBars = 60
	}
	if len(bars) < minBars {
		return nil
	}
	closes := bars.Closes()
	rsi := indicators.RSI(closes, 14)
	bb := indicators.Bollinger(closes, 20, 2.0)

	net := s.network(symbol, bars, rsi, bb)
	if net == nil {
		return nil
	}
	pred := net.Predict(mlpFeatures(bars, rsi, bb, len(bars)-1)) / 100
	band := s.cfg.Param("forecast_band", 0.002)
	if math.Abs(pred) < band {
		return nil
	}

	price := bars.Last().Close
	conf := clampConf(0.5+math.Min((math.Abs(pred)-band)*100, 0.3), 0.5)
	extra := map[string]interface{}{"forecast_return": pred}

	if pred > 0 {
		return []Signal{entrySignal(symbol, "MLP_FORECAST_UP", ActionBuy, price, conf,
			fmt.Sprintf("forecast %+.3f%% next bar", pred*100),
			bars, extra)}
	}
	return []Signal{entrySignal(symbol, "MLP_FORECAST_DOWN", ActionSell, price, conf,
		fmt.Sprintf("forecast %+.3f%% next bar", pred*100),
		bars, extra)}
}
