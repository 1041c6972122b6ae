package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"term-deposit/internal/common"
	"term-deposit/internal/features"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Stage is a step of a search run. Runs move strictly forward.
type Stage int32

const (
	StageInit Stage = iota
	StageSplit
	StageCrossValidatedSearch
	StageRefit
	StageEvaluate
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageSplit:
		return "split"
	case StageCrossValidatedSearch:
		return "cross_validated_search"
	case StageRefit:
		return "refit"
	case StageEvaluate:
		return "evaluate"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int32(s))
}

// SearchAbortError reports a degenerate class distribution. Config and Fold
// are -1 when the abort is not tied to a configuration or fold.
type SearchAbortError struct {
	Stage  Stage
	Config int
	Fold   int
	Reason string
}

func (e *SearchAbortError) Error() string {
	if e.Config < 0 {
		return fmt.Sprintf("search aborted during %s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("search aborted during %s (configuration %d, fold %d): %s",
		e.Stage, e.Config, e.Fold, e.Reason)
}

// SearchMetrics receives training-time measurements.
type SearchMetrics interface {
	SearchTrialScoreObserve(float64)
	SearchDurationObserve(float64)
	SearchHeldOutScoreSet(float64)
}

// SearchConfig configures a randomized search run.
type SearchConfig struct {
	NIter     int     `json:"n_iter"`
	KFolds    int     `json:"k_folds"`
	TestRatio float64 `json:"test_ratio"`
	Seed      int64   `json:"seed"`
	Workers   int     `json:"workers"`
	// Space overrides the default ranges centered on the class imbalance.
	Space *SearchSpace `json:"space,omitempty"`
}

// DefaultSearchConfig returns the standard run settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		NIter:     common.DefaultNIter,
		KFolds:    common.DefaultKFolds,
		TestRatio: common.DefaultTestRatio,
		Seed:      common.DefaultSeed,
		Workers:   runtime.NumCPU(),
	}
}

// Trial is one sampled configuration and its cross-validated scores.
type Trial struct {
	Index      int       `json:"index"`
	Params     Params    `json:"params"`
	FoldScores []float64 `json:"fold_scores"`
	MeanScore  float64   `json:"mean_score"`
}

// SearchResult is the outcome of a completed run.
type SearchResult struct {
	BestIndex       int     `json:"best_index"`
	BestParams      Params  `json:"best_params"`
	BestCVScore     float64 `json:"best_cv_score"`
	TestScore       float64 `json:"test_score"`
	ImbalanceWeight float64 `json:"imbalance_weight"`
	TrainRows       int     `json:"train_rows"`
	TestRows        int     `json:"test_rows"`
	Trials          []Trial `json:"trials"`
}

// Search runs the randomized hyperparameter search for one training run.
type Search struct {
	cfg     SearchConfig
	schema  features.Schema
	metrics SearchMetrics
	stage   atomic.Int32
}

// NewSearch validates the configuration. metrics may be nil.
func NewSearch(cfg SearchConfig, schema features.Schema, metrics SearchMetrics) (*Search, error) {
	if schema.IsZero() {
		return nil, fmt.Errorf("search requires a feature schema")
	}
	if cfg.NIter < 1 {
		return nil, fmt.Errorf("n_iter must be at least 1, got %d", cfg.NIter)
	}
	if cfg.KFolds < 2 {
		return nil, fmt.Errorf("k_folds must be at least 2, got %d", cfg.KFolds)
	}
	if cfg.TestRatio <= 0 || cfg.TestRatio >= 1 {
		return nil, fmt.Errorf("test ratio must be in (0, 1), got %f", cfg.TestRatio)
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Space != nil {
		if err := cfg.Space.Validate(); err != nil {
			return nil, fmt.Errorf("search space: %w", err)
		}
	}
	return &Search{cfg: cfg, schema: schema, metrics: metrics}, nil
}

// Stage reports how far the run has progressed.
func (s *Search) Stage() Stage { return Stage(s.stage.Load()) }

func (s *Search) advance(next Stage) {
	prev := Stage(s.stage.Swap(int32(next)))
	log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("Search stage transition")
}

// Run executes the search on raw rows and 0/1 labels and returns the refit
// model together with the search summary.
func (s *Search) Run(ctx context.Context, rows []features.RawRecord, labels []int) (*TrainedModel, *SearchResult, error) {
	start := time.Now()
	s.stage.Store(int32(StageInit))

	if len(rows) != len(labels) {
		return nil, nil, fmt.Errorf("got %d rows but %d labels", len(rows), len(labels))
	}
	classes := classIndices(labels)
	if len(classes) < 2 {
		return nil, nil, &SearchAbortError{Stage: StageInit, Config: -1, Fold: -1,
			Reason: fmt.Sprintf("training data has %d distinct label classes, need 2", len(classes))}
	}
	weight, err := features.ClassImbalance(labels)
	if err != nil {
		return nil, nil, &SearchAbortError{Stage: StageInit, Config: -1, Fold: -1, Reason: err.Error()}
	}

	space := DefaultSearchSpace(weight)
	if s.cfg.Space != nil {
		space = *s.cfg.Space
	}
	if err := space.Validate(); err != nil {
		return nil, nil, fmt.Errorf("search space: %w", err)
	}

	log.Info().
		Int("rows", len(rows)).
		Int("positives", len(classes[1])).
		Float64("imbalance_weight", weight).
		Int("n_iter", s.cfg.NIter).
		Int("k_folds", s.cfg.KFolds).
		Int64("seed", s.cfg.Seed).
		Msg("Starting hyperparameter search")

	s.advance(StageSplit)
	trainIdx, testIdx, err := stratifiedSplit(labels, s.cfg.TestRatio, rand.New(rand.NewSource(s.cfg.Seed)))
	if err != nil {
		return nil, nil, &SearchAbortError{Stage: StageSplit, Config: -1, Fold: -1, Reason: err.Error()}
	}
	trainRows, trainLabels := subset(rows, labels, trainIdx)
	testRows, testLabels := subset(rows, labels, testIdx)

	s.advance(StageCrossValidatedSearch)
	trials, err := s.crossValidate(ctx, trainRows, trainLabels, space, weight)
	if err != nil {
		return nil, nil, err
	}

	best := 0
	for i, t := range trials {
		if s.metrics != nil {
			s.metrics.SearchTrialScoreObserve(t.MeanScore)
		}
		log.Info().
			Int("config", t.Index).
			Float64("mean_roc_auc", t.MeanScore).
			Int("n_estimators", t.Params.NEstimators).
			Float64("learning_rate", t.Params.LearningRate).
			Int("max_depth", t.Params.MaxDepth).
			Float64("scale_pos_weight", t.Params.ScalePosWeight).
			Msg("Configuration scored")
		// strict comparison keeps the earliest configuration on ties
		if t.MeanScore > trials[best].MeanScore {
			best = i
		}
	}
	winner := trials[best]

	s.advance(StageRefit)
	encoder, booster, err := fitPipeline(ctx, trainRows, trainLabels, s.schema, winner.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("refit best configuration: %w", err)
	}

	s.advance(StageEvaluate)
	testScore, err := scorePipeline(encoder, booster, testRows, testLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate held-out split: %w", err)
	}

	importance := make(map[string]float64)
	for i, v := range booster.FeatureImportance() {
		if v > 0 {
			importance[encoder.Columns()[i]] = v
		}
	}

	model, err := NewTrainedModel(encoder, booster, ModelMetadata{
		TrainedAt:         time.Now().UTC(),
		TrainingRows:      len(trainRows),
		TestRows:          len(testRows),
		CVScore:           winner.MeanScore,
		TestScore:         testScore,
		ImbalanceWeight:   weight,
		Params:            winner.Params,
		FeatureImportance: importance,
	})
	if err != nil {
		return nil, nil, err
	}

	result := &SearchResult{
		BestIndex:       best,
		BestParams:      winner.Params,
		BestCVScore:     winner.MeanScore,
		TestScore:       testScore,
		ImbalanceWeight: weight,
		TrainRows:       len(trainRows),
		TestRows:        len(testRows),
		Trials:          trials,
	}

	s.advance(StageDone)
	if s.metrics != nil {
		s.metrics.SearchDurationObserve(time.Since(start).Seconds())
		s.metrics.SearchHeldOutScoreSet(testScore)
	}
	log.Info().
		Int("best_config", best).
		Float64("cv_roc_auc", winner.MeanScore).
		Float64("test_roc_auc", testScore).
		Dur("elapsed", time.Since(start)).
		Msg("Search complete")

	return model, result, nil
}

// crossValidate samples NIter configurations and scores each with stratified
// k-fold CV. Every (configuration, fold) unit runs on the worker pool.
func (s *Search) crossValidate(ctx context.Context, rows []features.RawRecord, labels []int, space SearchSpace, weight float64) ([]Trial, error) {
	folds, err := stratifiedKFold(labels, s.cfg.KFolds, rand.New(rand.NewSource(s.cfg.Seed)))
	if err != nil {
		return nil, &SearchAbortError{Stage: StageCrossValidatedSearch, Config: 0, Fold: -1, Reason: err.Error()}
	}
	fitIdx := make([][]int, len(folds))
	for f, val := range folds {
		fitIdx[f] = complement(len(labels), val)
		// folds are shared by every configuration, so the first one would hit it
		if !hasBothClasses(labels, val) {
			return nil, &SearchAbortError{Stage: StageCrossValidatedSearch, Config: 0, Fold: f,
				Reason: "validation fold is missing a label class"}
		}
		if !hasBothClasses(labels, fitIdx[f]) {
			return nil, &SearchAbortError{Stage: StageCrossValidatedSearch, Config: 0, Fold: f,
				Reason: "training part of fold is missing a label class"}
		}
	}

	base := DefaultParams()
	base.ScalePosWeight = weight
	base.Seed = s.cfg.Seed

	sampler := rand.New(rand.NewSource(s.cfg.Seed))
	trials := make([]Trial, s.cfg.NIter)
	for i := range trials {
		trials[i] = Trial{
			Index:      i,
			Params:     space.Sample(sampler, base),
			FoldScores: make([]float64, len(folds)),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for c := range trials {
		c := c
		for f := range folds {
			f := f
			g.Go(func() error {
				fitRows, fitLabels := subset(rows, labels, fitIdx[f])
				valRows, valLabels := subset(rows, labels, folds[f])

				encoder, booster, err := fitPipeline(gctx, fitRows, fitLabels, s.schema, trials[c].Params)
				if err != nil {
					return fmt.Errorf("configuration %d fold %d: %w", c, f, err)
				}
				score, err := scorePipeline(encoder, booster, valRows, valLabels)
				if err != nil {
					return fmt.Errorf("configuration %d fold %d: %w", c, f, err)
				}
				trials[c].FoldScores[f] = score

				log.Debug().Int("config", c).Int("fold", f).Float64("roc_auc", score).Msg("Fold scored")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		var abort *SearchAbortError
		if errors.As(err, &abort) {
			return nil, err
		}
		return nil, fmt.Errorf("cross-validated search: %w", err)
	}

	for i := range trials {
		sum := 0.0
		for _, v := range trials[i].FoldScores {
			sum += v
		}
		trials[i].MeanScore = sum / float64(len(trials[i].FoldScores))
	}
	return trials, nil
}

// fitPipeline fits the encoder on rows and trains a booster on its output.
func fitPipeline(ctx context.Context, rows []features.RawRecord, labels []int, schema features.Schema, params Params) (*features.Encoder, *Booster, error) {
	encoder, err := features.Fit(rows, schema)
	if err != nil {
		return nil, nil, fmt.Errorf("fit encoder: %w", err)
	}
	frame, err := encoder.Transform(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("encode training rows: %w", err)
	}
	booster, err := FitBooster(ctx, frame.Rows, labels, params)
	if err != nil {
		return nil, nil, fmt.Errorf("fit booster: %w", err)
	}
	return encoder, booster, nil
}

func scorePipeline(encoder *features.Encoder, booster *Booster, rows []features.RawRecord, labels []int) (float64, error) {
	frame, err := encoder.Transform(rows)
	if err != nil {
		return 0, fmt.Errorf("encode rows: %w", err)
	}
	scores, err := booster.PredictBatch(frame.Rows)
	if err != nil {
		return 0, err
	}
	return ROCAUC(labels, scores)
}

func subset(rows []features.RawRecord, labels []int, idx []int) ([]features.RawRecord, []int) {
	r := make([]features.RawRecord, len(idx))
	l := make([]int, len(idx))
	for i, j := range idx {
		r[i] = rows[j]
		l[i] = labels[j]
	}
	return r, l
}
