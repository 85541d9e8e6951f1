package indicators

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// REGRESSION AND CORRELATION
// ============================================================================

// LinRegResult holds a least-squares fit over a price window.
type LinRegResult struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// LinearRegression fits y = intercept + slope*x over xs with x = 0..n-1.
func LinearRegression(xs []float64) *LinRegResult {
	if len(xs) < 2 {
		return &LinRegResult{Slope: math.NaN(), Intercept: math.NaN(), R2: math.NaN()}
	}
	idx := make([]float64, len(xs))
	for i := range idx {
		idx[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(idx, xs, nil, false)
	r2 := stat.RSquared(idx, xs, nil, intercept, slope)
	return &LinRegResult{Slope: slope, Intercept: intercept, R2: r2}
}

// Correlation returns the Pearson correlation of two equal-length series.
func Correlation(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return stat.Correlation(a, b, nil)
}

// Returns converts a price series into simple percentage returns. The result
// is one element shorter than the input.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// ============================================================================
// MLP REGRESSOR
// ============================================================================

// MLPRegressor is a single-hidden-layer perceptron trained by plain SGD.
// Construction is deterministic for a given seed, so identical inputs always
// produce identical predictions.
type MLPRegressor struct {
	InputDim  int           `json:"input_dim"`
	Hidden    int           `json:"hidden"`
	W1        [][]float64   `json:"w1"`
	B1        []float64     `json:"b1"`
	W2        []float64     `json:"w2"`
	B2        float64       `json:"b2"`
	LearnRate float64       `json:"learn_rate"`
	Epochs    int           `json:"epochs"`
}

// NewMLPRegressor builds a network with tanh hidden units and weights drawn
// from a seeded uniform distribution.
func NewMLPRegressor(inputDim, hidden int, seed int64) *MLPRegressor {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(inputDim))
	w1 := make([][]float64, hidden)
	for h := range w1 {
		w1[h] = make([]float64, inputDim)
		for j := range w1[h] {
			w1[h][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	w2 := make([]float64, hidden)
	for h := range w2 {
		w2[h] = (rng.Float64()*2 - 1) * scale
	}
	return &MLPRegressor{
		InputDim:  inputDim,
		Hidden:    hidden,
		W1:        w1,
		B1:        make([]float64, hidden),
		W2:        w2,
		LearnRate: 0.01,
		Epochs:    200,
	}
}

// Fit trains on the given samples for a fixed number of epochs. Sample order
// is preserved, keeping training deterministic.
func (m *MLPRegressor) Fit(samples [][]float64, targets []float64) {
	if len(samples) == 0 || len(samples) != len(targets) {
		return
	}
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for s, x := range samples {
			hidden, out := m.forward(x)
			errOut := out - targets[s]

			// Output layer.
			for h := 0; h < m.Hidden; h++ {
				gradW2 := errOut * hidden[h]
				// Hidden layer, tanh derivative = 1 - a^2.
				gradH := errOut * m.W2[h] * (1 - hidden[h]*hidden[h])
				m.W2[h] -= m.LearnRate * gradW2
				for j := 0; j < m.InputDim; j++ {
					m.W1[h][j] -= m.LearnRate * gradH * x[j]
				}
				m.B1[h] -= m.LearnRate * gradH
			}
			m.B2 -= m.LearnRate * errOut
		}
	}
}

// Predict runs a forward pass over one feature vector.
func (m *MLPRegressor) Predict(x []float64) float64 {
	_, out := m.forward(x)
	return out
}

func (m *MLPRegressor) forward(x []float64) ([]float64, float64) {
	hidden := make([]float64, m.Hidden)
	for h := 0; h < m.Hidden; h++ {
		sum := m.B1[h]
		for j := 0; j < m.InputDim && j < len(x); j++ {
			sum += m.W1[h][j] * x[j]
		}
		hidden[h] = math.Tanh(sum)
	}
	out := m.B2
	for h := 0; h < m.Hidden; h++ {
		out += m.W2[h] * hidden[h]
	}
	return hidden, out
}

// ============================================================================
// ISOLATION FOREST
// ============================================================================

// IsolationForest is the anomaly detector behind the anomaly strategy. Scores
// approach 1 for points isolated in few splits; typical data scores near 0.5.
// The struct marshals to JSON so fitted models can be persisted and reloaded.
type IsolationForest struct {
	NumTrees   int        `json:"num_trees"`
	SampleSize int        `json:"sample_size"`
	Seed       int64      `json:"seed"`
	Trees      []*isoNode `json:"trees"`
}

type isoNode struct {
	Feature int      `json:"f"`
	Split   float64  `json:"s"`
	Size    int      `json:"n"`
	Left    *isoNode `json:"l,omitempty"`
	Right   *isoNode `json:"r,omitempty"`
}

// NewIsolationForest builds an unfitted forest. Fitting with the same seed
// and data rebuilds identical trees.
func NewIsolationForest(numTrees, sampleSize int, seed int64) *IsolationForest {
	return &IsolationForest{NumTrees: numTrees, SampleSize: sampleSize, Seed: seed}
}

// Fit builds the forest over the sample matrix.
func (f *IsolationForest) Fit(samples [][]float64) {
	f.Trees = make([]*isoNode, 0, f.NumTrees)
	if len(samples) == 0 {
		return
	}
	rng := rand.New(rand.NewSource(f.Seed))
	maxDepth := int(math.Ceil(math.Log2(float64(f.SampleSize)))) + 1
	for t := 0; t < f.NumTrees; t++ {
		sub := subsample(samples, f.SampleSize, rng)
		f.Trees = append(f.Trees, buildIsoTree(sub, 0, maxDepth, rng))
	}
}

// Fitted reports whether the forest has trees to score against.
func (f *IsolationForest) Fitted() bool {
	return len(f.Trees) > 0
}

// Score returns the anomaly score of one point in (0, 1).
func (f *IsolationForest) Score(x []float64) float64 {
	if !f.Fitted() {
		return 0
	}
	sum := 0.0
	for _, tree := range f.Trees {
		sum += pathLength(tree, x, 0)
	}
	avgPath := sum / float64(len(f.Trees))
	c := avgPathNorm(f.SampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avgPath/c)
}

func subsample(samples [][]float64, n int, rng *rand.Rand) [][]float64 {
	if len(samples) <= n {
		return samples
	}
	out := make([][]float64, n)
	for i, idx := range rng.Perm(len(samples))[:n] {
		out[i] = samples[idx]
	}
	return out
}

func buildIsoTree(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	node := &isoNode{Size: len(samples)}
	if depth >= maxDepth || len(samples) <= 1 {
		return node
	}
	dims := len(samples[0])
	feature := rng.Intn(dims)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		lo = math.Min(lo, s[feature])
		hi = math.Max(hi, s[feature])
	}
	if hi <= lo {
		return node
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, s := range samples {
		if s[feature] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	node.Feature = feature
	node.Split = split
	node.Left = buildIsoTree(left, depth+1, maxDepth, rng)
	node.Right = buildIsoTree(right, depth+1, maxDepth, rng)
	return node
}

func pathLength(node *isoNode, x []float64, depth float64) float64 {
	if node.Left == nil && node.Right == nil {
		return depth + avgPathNorm(node.Size)
	}
	if node.Feature < len(x) && x[node.Feature] < node.Split {
		return pathLength(node.Left, x, depth+1)
	}
	return pathLength(node.Right, x, depth+1)
}

// avgPathNorm is c(n), the average path length of an unsuccessful BST search,
// used to normalize isolation depths.
func avgPathNorm(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	harmonic := math.Log(fn-1) + 0.5772156649
	return 2*harmonic - 2*(fn-1)/fn
}
