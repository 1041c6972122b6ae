package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// boosterFormatVersion is bumped whenever the persisted booster layout changes.
const boosterFormatVersion = 1

// Params are the gradient boosting hyperparameters. Names follow XGBoost.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Gamma           float64 `json:"gamma"`
	ScalePosWeight  float64 `json:"scale_pos_weight"`
	Lambda          float64 `json:"lambda"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Seed            int64   `json:"seed"`
}

// DefaultParams mirrors the XGBoost defaults for binary:logistic.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		LearningRate:    0.3,
		MaxDepth:        6,
		Subsample:       1,
		ColsampleByTree: 1,
		Gamma:           0,
		ScalePosWeight:  1,
		Lambda:          1,
		MinChildWeight:  1,
		Seed:            42,
	}
}

// Validate checks that the parameters can train a booster.
func (p Params) Validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("n_estimators must be at least 1, got %d", p.NEstimators)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("max_depth must be at least 1, got %d", p.MaxDepth)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %f", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %f", p.ColsampleByTree)
	case p.Gamma < 0:
		return fmt.Errorf("gamma must be non-negative, got %f", p.Gamma)
	case p.ScalePosWeight <= 0:
		return fmt.Errorf("scale_pos_weight must be positive, got %f", p.ScalePosWeight)
	case p.Lambda < 0:
		return fmt.Errorf("lambda must be non-negative, got %f", p.Lambda)
	case p.MinChildWeight < 0:
		return fmt.Errorf("min_child_weight must be non-negative, got %f", p.MinChildWeight)
	}
	return nil
}

// treeNode is a split when Left >= 0, otherwise a leaf holding Value.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int32   `json:"l"`
	Right     int32   `json:"r"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *tree) predict(x []float64) float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Booster is a gradient-boosted ensemble of regression trees trained on the
// logistic loss. A fitted Booster is immutable and safe for concurrent use.
type Booster struct {
	params    Params
	nFeatures int
	trees     []tree
	gain      []float64
}

// FitBooster trains a booster on encoded rows and 0/1 labels. Positive rows
// have their gradient and hessian scaled by ScalePosWeight.
func FitBooster(ctx context.Context, X [][]float64, y []int, params Params) (*Booster, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("booster requires at least one row")
	}
	if len(y) != n {
		return nil, fmt.Errorf("booster got %d rows but %d labels", n, len(y))
	}
	p := len(X[0])
	if p == 0 {
		return nil, fmt.Errorf("booster requires at least one feature")
	}

	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i, row := range X {
		if len(row) != p {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), p)
		}
		for j, v := range row {
			cols[j][i] = v
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("label %d at row %d is not 0 or 1", y[i], i)
		}
	}

	order := make([][]int32, p)
	for j := range order {
		idx := make([]int32, n)
		for i := range idx {
			idx[i] = int32(i)
		}
		col := cols[j]
		sort.SliceStable(idx, func(a, b int) bool { return col[idx[a]] < col[idx[b]] })
		order[j] = idx
	}

	b := &Booster{
		params:    params,
		nFeatures: p,
		trees:     make([]tree, 0, params.NEstimators),
		gain:      make([]float64, p),
	}
	g := &grower{
		params: params,
		cols:   cols,
		order:  order,
		grad:   make([]float64, n),
		hess:   make([]float64, n),
		pos:    make([]int32, n),
	}

	rng := rand.New(rand.NewSource(params.Seed))
	margins := make([]float64, n)
	for round := 0; round < params.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range margins {
			prob := sigmoid(margins[i])
			w := 1.0
			if y[i] == 1 {
				w = params.ScalePosWeight
			}
			g.grad[i] = (prob - float64(y[i])) * w
			g.hess[i] = math.Max(prob*(1-prob), 1e-16) * w
		}

		for i := range g.pos {
			g.pos[i] = 0
			if params.Subsample < 1 && rng.Float64() >= params.Subsample {
				g.pos[i] = -1
			}
		}

		t := g.grow(sampleFeatures(rng, p, params.ColsampleByTree), b.gain)
		for i := range margins {
			margins[i] += t.predict(X[i])
		}
		b.trees = append(b.trees, t)
	}

	return b, nil
}

func sampleFeatures(rng *rand.Rand, p int, ratio float64) []int {
	k := int(math.Floor(ratio * float64(p)))
	if k < 1 {
		k = 1
	}
	if k >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	feats := rng.Perm(p)[:k]
	sort.Ints(feats)
	return feats
}

// grower builds one tree level by level over presorted feature columns.
type grower struct {
	params Params
	cols   [][]float64
	order  [][]int32
	grad   []float64
	hess   []float64
	pos    []int32 // node id of each row, -1 once the row is out of play
}

type frontierNode struct {
	id   int32
	g, h float64
}

type splitCandidate struct {
	gain      float64
	feature   int
	threshold float64
	gl, hl    float64
}

type scanState struct {
	g, h float64
	last float64
	seen bool
}

func (gr *grower) score(g, h float64) float64 {
	return g * g / (h + gr.params.Lambda)
}

func (gr *grower) leafValue(g, h float64) float64 {
	return -g / (h + gr.params.Lambda) * gr.params.LearningRate
}

func (gr *grower) grow(feats []int, gain []float64) tree {
	var rootG, rootH float64
	for i, nid := range gr.pos {
		if nid == 0 {
			rootG += gr.grad[i]
			rootH += gr.hess[i]
		}
	}

	t := tree{Nodes: []treeNode{{Left: -1, Right: -1}}}
	frontier := []frontierNode{{id: 0, g: rootG, h: rootH}}
	slot := []int{0}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth == gr.params.MaxDepth {
			for _, fn := range frontier {
				t.Nodes[fn.id].Value = gr.leafValue(fn.g, fn.h)
			}
			break
		}

		best := make([]splitCandidate, len(frontier))
		scans := make([]scanState, len(frontier))
		for _, f := range feats {
			for s := range scans {
				scans[s] = scanState{}
			}
			col := gr.cols[f]
			for _, row := range gr.order[f] {
				nid := gr.pos[row]
				if nid < 0 || int(nid) >= len(slot) || slot[nid] < 0 {
					continue
				}
				s := slot[nid]
				st := &scans[s]
				x := col[row]
				if st.seen && x != st.last {
					gr.consider(&best[s], frontier[s], st, f, x)
				}
				st.g += gr.grad[row]
				st.h += gr.hess[row]
				st.last = x
				st.seen = true
			}
		}

		var next []frontierNode
		splits := make(map[int32]splitCandidate)
		for s, fn := range frontier {
			cand := best[s]
			if cand.gain <= gr.params.Gamma || cand.gain <= 1e-6 {
				t.Nodes[fn.id].Value = gr.leafValue(fn.g, fn.h)
				continue
			}
			left := int32(len(t.Nodes))
			right := left + 1
			t.Nodes = append(t.Nodes, treeNode{Left: -1, Right: -1}, treeNode{Left: -1, Right: -1})
			t.Nodes[fn.id].Feature = cand.feature
			t.Nodes[fn.id].Threshold = cand.threshold
			t.Nodes[fn.id].Left = left
			t.Nodes[fn.id].Right = right
			gain[cand.feature] += cand.gain
			splits[fn.id] = cand
			next = append(next,
				frontierNode{id: left, g: cand.gl, h: cand.hl},
				frontierNode{id: right, g: fn.g - cand.gl, h: fn.h - cand.hl},
			)
		}

		for i, nid := range gr.pos {
			if nid < 0 || int(nid) >= len(slot) || slot[nid] < 0 {
				continue
			}
			cand, ok := splits[nid]
			if !ok {
				gr.pos[i] = -1
				continue
			}
			if gr.cols[cand.feature][i] < cand.threshold {
				gr.pos[i] = t.Nodes[nid].Left
			} else {
				gr.pos[i] = t.Nodes[nid].Right
			}
		}

		slot = make([]int, len(t.Nodes))
		for i := range slot {
			slot[i] = -1
		}
		for s, fn := range next {
			slot[fn.id] = s
		}
		frontier = next
	}

	return t
}

// consider evaluates splitting node fn between the values already scanned
// (ending at st.last) and x.
func (gr *grower) consider(best *splitCandidate, fn frontierNode, st *scanState, feature int, x float64) {
	gl, hl := st.g, st.h
	gr2, hr := fn.g-gl, fn.h-hl
	if hl < gr.params.MinChildWeight || hr < gr.params.MinChildWeight {
		return
	}
	gain := gr.score(gl, hl) + gr.score(gr2, hr) - gr.score(fn.g, fn.h)
	if gain <= best.gain {
		return
	}
	threshold := st.last + (x-st.last)/2
	if threshold <= st.last {
		threshold = x
	}
	*best = splitCandidate{gain: gain, feature: feature, threshold: threshold, gl: gl, hl: hl}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// NumFeatures is the encoded row width the booster was trained on.
func (b *Booster) NumFeatures() int { return b.nFeatures }

// NumTrees is the ensemble size.
func (b *Booster) NumTrees() int { return len(b.trees) }

// Params returns the hyperparameters the booster was trained with.
func (b *Booster) Params() Params { return b.params }

// PredictRow returns the positive-class probability for one encoded row.
func (b *Booster) PredictRow(x []float64) (float64, error) {
	if len(x) != b.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", b.nFeatures, len(x))
	}
	margin := 0.0
	for i := range b.trees {
		margin += b.trees[i].predict(x)
	}
	return sigmoid(margin), nil
}

// PredictBatch scores every row.
func (b *Booster) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		p, err := b.PredictRow(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// FeatureImportance returns the total split gain of every feature normalised
// to sum to one. Features never used for a split get zero.
func (b *Booster) FeatureImportance() []float64 {
	out := make([]float64, len(b.gain))
	total := 0.0
	for _, g := range b.gain {
		total += g
	}
	if total == 0 {
		return out
	}
	for i, g := range b.gain {
		out[i] = g / total
	}
	return out
}

type boosterDocument struct {
	FormatVersion int       `json:"format_version"`
	Params        Params    `json:"params"`
	NumFeatures   int       `json:"n_features"`
	Gain          []float64 `json:"gain"`
	Trees         []tree    `json:"trees"`
}

// MarshalJSON persists the ensemble.
func (b *Booster) MarshalJSON() ([]byte, error) {
	return json.Marshal(boosterDocument{
		FormatVersion: boosterFormatVersion,
		Params:        b.params,
		NumFeatures:   b.nFeatures,
		Gain:          b.gain,
		Trees:         b.trees,
	})
}

// UnmarshalJSON restores an ensemble, rejecting malformed trees.
func (b *Booster) UnmarshalJSON(data []byte) error {
	var doc boosterDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.FormatVersion != boosterFormatVersion {
		return fmt.Errorf("unsupported booster format version %d", doc.FormatVersion)
	}
	if doc.NumFeatures < 1 {
		return fmt.Errorf("booster has no features")
	}
	if len(doc.Gain) != doc.NumFeatures {
		return fmt.Errorf("booster has %d gain entries for %d features", len(doc.Gain), doc.NumFeatures)
	}
	for ti, t := range doc.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= doc.NumFeatures {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, ni, n.Feature)
			}
			// children always come after their parent, so walks terminate
			if int(n.Left) <= ni || int(n.Right) <= ni || int(n.Left) >= len(t.Nodes) || int(n.Right) >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", ti, ni)
			}
		}
	}

	*b = Booster{
		params:    doc.Params,
		nFeatures: doc.NumFeatures,
		trees:     doc.Trees,
		gain:      doc.Gain,
	}
	return nil
}
