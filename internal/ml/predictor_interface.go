// Package ml trains and serves the term deposit subscription model. It holds
// the gradient-boosted tree classifier, the randomized cross-validated
// hyperparameter search, artifact persistence, the version registry and the
// inference adapter with its HTTP surface.
package ml

import "term-deposit/internal/features"

// PredictorInterface is what the HTTP layer needs from a predictor.
type PredictorInterface interface {
	// Predict scores one raw record, or fails with a typed error.
	Predict(record features.RawRecord) (Outcome, error)

	// Ready reports whether artifacts are loaded; Err explains why not.
	Ready() bool
	Err() error

	Metadata() (ModelMetadata, bool)
	Schema() (features.Schema, bool)
	Version() string
}
