package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvDatasetPath    = "DATASET_PATH"
	EnvArtifactsDir   = "ARTIFACTS_DIR"
	EnvDataPath       = "DATA_PATH"
	EnvNIter          = "SEARCH_N_ITER"
	EnvKFolds         = "SEARCH_K_FOLDS"
	EnvTestRatio      = "SEARCH_TEST_RATIO"
	EnvSeed           = "SEARCH_SEED"
	EnvWorkers        = "SEARCH_WORKERS"
	EnvServerPort     = "SERVER_PORT"
	EnvServerURL      = "SERVER_URL"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvMetricsFile    = "TRAINER_METRICS_FILE"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
)

// Configuration defaults
const (
	DefaultDatasetPath    = "data/dataset.csv"
	DefaultArtifactsDir   = "artifacts"
	DefaultDataPath       = "data"
	DefaultNIter          = 10
	DefaultKFolds         = 5
	DefaultTestRatio      = 0.2
	DefaultSeed           = 42
	DefaultServerPort     = 8000
	DefaultServerURL      = "http://localhost:8000"
	DefaultLogLevel       = "info"
	DefaultRequestSeconds = 5
)

// Training data layout
const (
	DatasetDelimiter = ';'
	TargetColumn     = "y"
	PositiveLabel    = "yes"
	NegativeLabel    = "no"
)

// Artifact file names inside a model version directory
const (
	PipelineFile       = "pipeline.json"
	FeatureSchemaFile  = "feature_schema.json"
	BinaryFeaturesFile = "binary_features.json"
	VersionsFile       = "model_versions.json"
	HistoryDBFile      = "training-history.db"
	TrainerMetricsFile = "trainer_metrics.prom"
)

// Validation constants
const (
	MinNIter      = 1
	MaxNIter      = 1000
	MinKFolds     = 2
	MaxKFolds     = 20
	MinTestRatio  = 0.05
	MaxTestRatio  = 0.5
	MinServerPort = 1024
	MaxServerPort = 65535
)

// DecisionThreshold is the positive-class probability a prediction must exceed to be labelled "yes".
const DecisionThreshold = 0.5
