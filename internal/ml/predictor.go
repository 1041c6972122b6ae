package ml

import (
	"errors"
	"fmt"
	"time"

	"term-deposit/internal/common"
	"term-deposit/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	NotReadyInc()
	LatencyObserve(float64)
	PredictionScoresObserve(float64)
	ReadySet(bool)
	ModelScoreSet(float64)
}

// ServingContext is a loaded model together with the schema its artifacts
// declare. It is immutable and safe for concurrent use.
type ServingContext struct {
	model  *TrainedModel
	schema features.Schema
}

// NewServingContext pairs a model with the schema read from the standalone
// artifacts. The two must describe the same columns and groups.
func NewServingContext(model *TrainedModel, schema features.Schema) (*ServingContext, error) {
	if model == nil {
		return nil, errors.New("serving context requires a model")
	}
	if !schema.Equal(model.Schema()) {
		return nil, fmt.Errorf("artifact schema disagrees with the model schema on columns %v",
			schemaDiff(model.Schema(), schema))
	}
	return &ServingContext{model: model, schema: schema}, nil
}

// schemaDiff lists the model's columns absent from, or regrouped in, other.
func schemaDiff(want, other features.Schema) []string {
	var diff []string
	for _, c := range want.Columns() {
		g, ok := other.GroupOf(c)
		if wg, _ := want.GroupOf(c); !ok || g != wg {
			diff = append(diff, c)
		}
	}
	if len(diff) == 0 {
		// same columns in a different order, or extras on the other side
		diff = other.Columns()
	}
	return diff
}

// Model returns the bundled model.
func (s *ServingContext) Model() *TrainedModel { return s.model }

// Schema returns the serving schema.
func (s *ServingContext) Schema() features.Schema { return s.schema }

// Outcome is the result of one prediction.
type Outcome struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"prediction"`
}

// Predictor answers single-record predictions from a loaded ServingContext.
// A predictor whose artifacts failed to load stays not ready and rejects every
// call with the load error.
type Predictor struct {
	serving *ServingContext
	loadErr error
	metrics MetricsInterface
}

// NewPredictor wraps an already loaded serving context. metrics may be nil.
func NewPredictor(serving *ServingContext, metrics MetricsInterface) *Predictor {
	p := &Predictor{serving: serving, metrics: metrics}
	if serving == nil {
		p.loadErr = &ArtifactLoadError{Artifact: common.PipelineFile, Err: errors.New("no serving context")}
	}
	p.reportReady()
	return p
}

// NewUnavailablePredictor returns a predictor that rejects every call with err.
func NewUnavailablePredictor(err error, metrics MetricsInterface) *Predictor {
	var loadErr *ArtifactLoadError
	if !errors.As(err, &loadErr) {
		err = &ArtifactLoadError{Artifact: common.PipelineFile, Err: err}
	}
	p := &Predictor{loadErr: err, metrics: metrics}
	p.reportReady()
	return p
}

// Load reads the artifacts in dir. It never fails: on error the returned
// predictor is not ready and Err reports why.
func Load(dir string, metrics MetricsInterface) *Predictor {
	serving, err := LoadArtifacts(dir)
	if err != nil {
		log.Warn().Err(err).Str("artifacts_dir", dir).Msg("Model artifacts unavailable, predictor not ready")
		return NewUnavailablePredictor(err, metrics)
	}

	meta := serving.Model().Metadata()
	log.Info().
		Str("artifacts_dir", dir).
		Str("version", meta.Version).
		Float64("cv_roc_auc", meta.CVScore).
		Float64("test_roc_auc", meta.TestScore).
		Int("trees", serving.Model().classifier.NumTrees()).
		Msg("Model artifacts loaded")
	return NewPredictor(serving, metrics)
}

func (p *Predictor) reportReady() {
	if p.metrics == nil {
		return
	}
	p.metrics.ReadySet(p.Ready())
	if p.Ready() {
		p.metrics.ModelScoreSet(p.serving.Model().Metadata().TestScore)
	}
}

// Ready reports whether the predictor can serve requests.
func (p *Predictor) Ready() bool {
	return p != nil && p.serving != nil
}

// Err returns the load failure of a not-ready predictor, nil otherwise.
func (p *Predictor) Err() error {
	if p == nil {
		return &ArtifactLoadError{Artifact: common.PipelineFile, Err: errors.New("predictor is nil")}
	}
	return p.loadErr
}

// Metadata returns the loaded model's metadata.
func (p *Predictor) Metadata() (ModelMetadata, bool) {
	if !p.Ready() {
		return ModelMetadata{}, false
	}
	return p.serving.Model().Metadata(), true
}

// Schema returns the serving schema of a ready predictor.
func (p *Predictor) Schema() (features.Schema, bool) {
	if !p.Ready() {
		return features.Schema{}, false
	}
	return p.serving.Schema(), true
}

// Predict scores one raw record. The label is "yes" only when the probability
// is strictly above the decision threshold.
func (p *Predictor) Predict(record features.RawRecord) (Outcome, error) {
	if !p.Ready() {
		if p != nil && p.metrics != nil {
			p.metrics.NotReadyInc()
		}
		return Outcome{}, p.Err()
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.LatencyObserve(time.Since(start).Seconds())
		}
	}()

	prob, err := p.serving.Model().PredictProba(record)
	if err != nil {
		if p.metrics != nil {
			p.metrics.PredictionFailuresInc()
		}
		log.Debug().Err(err).Msg("Prediction rejected")
		return Outcome{}, fmt.Errorf("predict: %w", err)
	}

	label := features.BinaryNo
	if prob > common.DecisionThreshold {
		label = features.BinaryYes
	}
	if p.metrics != nil {
		p.metrics.PredictionsInc()
		p.metrics.PredictionScoresObserve(prob)
	}
	return Outcome{Probability: prob, Label: label}, nil
}

// Version returns the registry version of the loaded model, if any.
func (p *Predictor) Version() string {
	meta, _ := p.Metadata()
	return meta.Version
}
