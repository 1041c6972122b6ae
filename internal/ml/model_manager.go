package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"term-deposit/internal/common"

	"github.com/rs/zerolog/log"
)

// versionLayout formats registry version IDs.
const versionLayout = "20060102-150405"

// ModelVersion represents a versioned trained pipeline
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains the evaluation scores recorded for a version
type ModelMetrics struct {
	CVScore         float64 `json:"cv_roc_auc"`
	TestScore       float64 `json:"test_roc_auc"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
}

// ModelManager handles model versioning and rollback
type ModelManager struct {
	mu           sync.RWMutex
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	current      string
}

// NewVersionID returns a version ID for a run finished at t.
func NewVersionID(t time.Time) string {
	return t.UTC().Format(versionLayout)
}

// NewModelManager creates a new model manager
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, common.VersionsFile),
		versions:     make([]ModelVersion, 0),
	}

	// Load existing versions if available
	if err := mm.loadVersions(); err != nil {
		return nil, fmt.Errorf("load model versions: %w", err)
	}

	return mm, nil
}

// VersionDir is where the artifacts of version are stored.
func (mm *ModelManager) VersionDir(version string) string {
	return filepath.Join(mm.modelsDir, version)
}

// AddVersion registers the artifacts stored at path under version.
func (mm *ModelManager) AddVersion(version, path string, metrics ModelMetrics) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.add(version, path, metrics)
}

func (mm *ModelManager) has(version string) bool {
	return slices.ContainsFunc(mm.versions, func(v ModelVersion) bool { return v.Version == version })
}

func (mm *ModelManager) add(version, path string, metrics ModelMetrics) error {
	if mm.has(version) {
		return fmt.Errorf("version %s already registered", version)
	}

	mm.versions = append(mm.versions, ModelVersion{
		Version:   version,
		Path:      path,
		CreatedAt: time.Now().UTC(),
		Metrics:   metrics,
	})

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].Version > mm.versions[j].Version
	})

	log.Info().Str("version", version).Str("path", path).Msg("Registered model version")
	return mm.saveVersions()
}

// Publish saves model under the version recorded in its metadata, registers
// it and makes it the active version. An already registered version is
// rejected before anything is written, so an existing artifact directory is
// never overwritten.
func (mm *ModelManager) Publish(model *TrainedModel, metrics ModelMetrics) (ModelVersion, error) {
	version := model.Metadata().Version
	if version == "" {
		return ModelVersion{}, fmt.Errorf("model has no version")
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.has(version) {
		return ModelVersion{}, fmt.Errorf("version %s already registered", version)
	}
	dir := mm.VersionDir(version)
	if _, err := os.Stat(dir); err == nil {
		return ModelVersion{}, fmt.Errorf("artifacts for version %s already exist at %s", version, dir)
	}
	if err := SaveArtifacts(dir, model); err != nil {
		return ModelVersion{}, fmt.Errorf("save artifacts: %w", err)
	}
	if err := mm.add(version, dir, metrics); err != nil {
		return ModelVersion{}, err
	}
	if err := mm.activate(version); err != nil {
		return ModelVersion{}, err
	}

	for _, v := range mm.versions {
		if v.Version == version {
			return v, nil
		}
	}
	return ModelVersion{}, fmt.Errorf("version %s not found", version)
}

// ActivateVersion activates a specific model version
func (mm *ModelManager) ActivateVersion(version string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.activate(version)
}

func (mm *ModelManager) activate(version string) error {
	if !mm.has(version) {
		return fmt.Errorf("version %s not found", version)
	}

	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
	}

	mm.current = version
	log.Info().Str("version", version).Msg("Activated model version")
	return mm.saveVersions()
}

// Rollback activates the version registered just before the active one.
func (mm *ModelManager) Rollback() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.Version == mm.current {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("no previous version available")
	}

	return mm.activate(mm.versions[currentIdx+1].Version)
}

// GetCurrentVersion returns the active version, or false when none is.
func (mm *ModelManager) GetCurrentVersion() (ModelVersion, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	for _, v := range mm.versions {
		if v.Version == mm.current {
			return v, true
		}
	}
	return ModelVersion{}, false
}

// ListVersions returns all model versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return append([]ModelVersion(nil), mm.versions...)
}

// loadVersions loads model versions from file
func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	for _, v := range mm.versions {
		if v.IsActive {
			mm.current = v.Version
			break
		}
	}

	return nil
}

// saveVersions saves model versions to file
func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(mm.versionsFile, data)
}
