package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"term-deposit/internal/common"
	"term-deposit/internal/features"
)

// pipelineFormatVersion is bumped whenever the pipeline artifact layout changes.
const pipelineFormatVersion = 1

// ModelMetadata describes how a trained model was produced.
type ModelMetadata struct {
	Version           string             `json:"version"`
	TrainedAt         time.Time          `json:"trained_at"`
	TrainingRows      int                `json:"training_rows"`
	TestRows          int                `json:"test_rows"`
	CVScore           float64            `json:"cv_roc_auc"`
	TestScore         float64            `json:"test_roc_auc"`
	ImbalanceWeight   float64            `json:"imbalance_weight"`
	Params            Params             `json:"params"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// Classifier turns an encoded row into a positive-class probability.
type Classifier interface {
	PredictRow(x []float64) (float64, error)
	NumFeatures() int
}

// TrainedModel bundles a fitted encoder with the classifier trained on its
// output, tagged with the schema the encoder was fit against. It is immutable.
type TrainedModel struct {
	encoder    *features.Encoder
	classifier *Booster
	metadata   ModelMetadata
}

// NewTrainedModel composes a fitted encoder and booster.
func NewTrainedModel(encoder *features.Encoder, classifier *Booster, metadata ModelMetadata) (*TrainedModel, error) {
	if encoder == nil || classifier == nil {
		return nil, fmt.Errorf("trained model requires an encoder and a classifier")
	}
	if encoder.Width() != classifier.NumFeatures() {
		return nil, fmt.Errorf("encoder produces %d columns but classifier expects %d",
			encoder.Width(), classifier.NumFeatures())
	}
	return &TrainedModel{encoder: encoder, classifier: classifier, metadata: metadata}, nil
}

// Schema is the schema the model was trained against.
func (m *TrainedModel) Schema() features.Schema { return m.encoder.Schema() }

// Encoder returns the fitted encoder bundled with the model.
func (m *TrainedModel) Encoder() *features.Encoder { return m.encoder }

// Classifier returns the fitted classifier.
func (m *TrainedModel) Classifier() Classifier { return m.classifier }

// Metadata returns training provenance.
func (m *TrainedModel) Metadata() ModelMetadata { return m.metadata }

// WithVersion returns a copy of the model stamped with a registry version.
func (m *TrainedModel) WithVersion(version string) *TrainedModel {
	c := *m
	c.metadata.Version = version
	return &c
}

// PredictProba encodes the record with the bundled encoder and scores it.
func (m *TrainedModel) PredictProba(r features.RawRecord) (float64, error) {
	row, err := m.encoder.TransformRecord(r)
	if err != nil {
		return 0, err
	}
	return m.classifier.PredictRow(row)
}

// ArtifactLoadError reports a missing, corrupt or inconsistent artifact.
type ArtifactLoadError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model artifacts not loaded: %s: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("model artifacts not loaded: %s (%s): %v", e.Artifact, e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

type pipelineDocument struct {
	FormatVersion int                     `json:"format_version"`
	Schema        features.SchemaDocument `json:"schema"`
	Encoder       *features.Encoder       `json:"encoder"`
	Classifier    *Booster                `json:"classifier"`
	Metadata      ModelMetadata           `json:"metadata"`
}

type featureSchemaDocument struct {
	Columns     []string `json:"columns"`
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// SaveArtifacts writes the pipeline, the feature schema and the binary feature
// list into dir.
func SaveArtifacts(dir string, m *TrainedModel) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	schema := m.Schema()
	docs := []struct {
		name string
		v    any
	}{
		{common.PipelineFile, pipelineDocument{
			FormatVersion: pipelineFormatVersion,
			Schema:        schema.Document(),
			Encoder:       m.encoder,
			Classifier:    m.classifier,
			Metadata:      m.metadata,
		}},
		{common.FeatureSchemaFile, featureSchemaDocument{
			Columns:     schema.Columns(),
			Numeric:     schema.Numeric(),
			Categorical: schema.Categorical(),
		}},
		{common.BinaryFeaturesFile, schema.Binary()},
	}

	for _, d := range docs {
		data, err := json.MarshalIndent(d.v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", d.name, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, d.name), data); err != nil {
			return fmt.Errorf("write %s: %w", d.name, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadArtifacts reads the three artifacts from dir and checks that they
// describe the same schema. Every failure is an *ArtifactLoadError.
func LoadArtifacts(dir string) (*ServingContext, error) {
	var pipeline pipelineDocument
	if err := readJSON(dir, common.PipelineFile, &pipeline); err != nil {
		return nil, err
	}
	pipelinePath := filepath.Join(dir, common.PipelineFile)
	if pipeline.FormatVersion != pipelineFormatVersion {
		return nil, &ArtifactLoadError{Artifact: common.PipelineFile, Path: pipelinePath,
			Err: fmt.Errorf("unsupported format version %d", pipeline.FormatVersion)}
	}
	if pipeline.Encoder == nil || pipeline.Classifier == nil {
		return nil, &ArtifactLoadError{Artifact: common.PipelineFile, Path: pipelinePath,
			Err: errors.New("encoder or classifier section is missing")}
	}
	tagged, err := pipeline.Schema.Schema()
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: common.PipelineFile, Path: pipelinePath, Err: err}
	}
	if !tagged.Equal(pipeline.Encoder.Schema()) {
		return nil, &ArtifactLoadError{Artifact: common.PipelineFile, Path: pipelinePath,
			Err: errors.New("encoder was fit against a different schema than the pipeline is tagged with")}
	}
	model, err := NewTrainedModel(pipeline.Encoder, pipeline.Classifier, pipeline.Metadata)
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: common.PipelineFile, Path: pipelinePath, Err: err}
	}

	var schemaDoc featureSchemaDocument
	if err := readJSON(dir, common.FeatureSchemaFile, &schemaDoc); err != nil {
		return nil, err
	}
	var binary []string
	if err := readJSON(dir, common.BinaryFeaturesFile, &binary); err != nil {
		return nil, err
	}

	schema, err := features.NewSchema(schemaDoc.Columns, schemaDoc.Numeric, schemaDoc.Categorical, binary)
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: common.FeatureSchemaFile, Path: filepath.Join(dir, common.FeatureSchemaFile), Err: err}
	}

	serving, err := NewServingContext(model, schema)
	if err != nil {
		return nil, &ArtifactLoadError{Artifact: common.FeatureSchemaFile, Path: filepath.Join(dir, common.FeatureSchemaFile), Err: err}
	}
	return serving, nil
}

func readJSON(dir, name string, v any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return &ArtifactLoadError{Artifact: name, Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ArtifactLoadError{Artifact: name, Path: path, Err: err}
	}
	return nil
}
