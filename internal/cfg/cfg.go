package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"term-deposit/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DatasetPath    string
	ArtifactsDir   string
	DataPath       string
	NIter          int
	KFolds         int
	TestRatio      float64
	Seed           int64
	Workers        int
	ServerPort     int
	ServerURL      string
	RequestTimeout time.Duration
	LogLevel       string
	MetricsFile    string // training metrics textfile, defaults under DataPath
	PushgatewayURL string // optional; training metrics are pushed when set
}

type ConfigFile struct {
	Data struct {
		DatasetPath  string `yaml:"datasetPath"`
		ArtifactsDir string `yaml:"artifactsDir"`
		DataPath     string `yaml:"dataPath"`
	} `yaml:"data"`

	Search struct {
		NIter     int     `yaml:"nIter"`
		KFolds    int     `yaml:"kFolds"`
		TestRatio float64 `yaml:"testRatio"`
		Seed      *int64  `yaml:"seed"`
		Workers   int     `yaml:"workers"`
	} `yaml:"search"`

	Server struct {
		Port           int    `yaml:"port"`
		URL            string `yaml:"url"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	System struct {
		LogLevel       string `yaml:"logLevel"`
		MetricsFile    string `yaml:"metricsFile"`
		PushgatewayURL string `yaml:"pushgatewayURL"`
	} `yaml:"system"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the
// environment. A .env file in the working directory is applied first; it
// never overrides variables that are already set.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout := common.DefaultRequestSeconds * time.Second
	if config.Server.RequestTimeout != "" {
		requestTimeout, err = time.ParseDuration(config.Server.RequestTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid server.requestTimeout %q: %w", config.Server.RequestTimeout, err)
		}
	}

	seed := int64(common.DefaultSeed)
	if config.Search.Seed != nil {
		seed = *config.Search.Seed
	}

	// Environment variables override the file
	settings := Settings{
		DatasetPath:    getEnvOrDefault(common.EnvDatasetPath, orDefault(config.Data.DatasetPath, common.DefaultDatasetPath)),
		ArtifactsDir:   getEnvOrDefault(common.EnvArtifactsDir, orDefault(config.Data.ArtifactsDir, common.DefaultArtifactsDir)),
		DataPath:       getEnvOrDefault(common.EnvDataPath, orDefault(config.Data.DataPath, common.DefaultDataPath)),
		NIter:          getIntOrDefault(common.EnvNIter, orDefault(config.Search.NIter, common.DefaultNIter)),
		KFolds:         getIntOrDefault(common.EnvKFolds, orDefault(config.Search.KFolds, common.DefaultKFolds)),
		TestRatio:      getFloatOrDefault(common.EnvTestRatio, orDefault(config.Search.TestRatio, common.DefaultTestRatio)),
		Seed:           getInt64OrDefault(common.EnvSeed, seed),
		Workers:        getIntOrDefault(common.EnvWorkers, orDefault(config.Search.Workers, runtime.NumCPU())),
		ServerPort:     getIntOrDefault(common.EnvServerPort, orDefault(config.Server.Port, common.DefaultServerPort)),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, orDefault(config.Server.URL, common.DefaultServerURL)),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		MetricsFile:    getEnvOrDefault(common.EnvMetricsFile, config.System.MetricsFile),
		PushgatewayURL: getEnvOrDefault(common.EnvPushgatewayURL, config.System.PushgatewayURL),
	}
	applyDerivedDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DatasetPath:    getEnvOrDefault(common.EnvDatasetPath, common.DefaultDatasetPath),
		ArtifactsDir:   getEnvOrDefault(common.EnvArtifactsDir, common.DefaultArtifactsDir),
		DataPath:       getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		NIter:          getIntOrDefault(common.EnvNIter, common.DefaultNIter),
		KFolds:         getIntOrDefault(common.EnvKFolds, common.DefaultKFolds),
		TestRatio:      getFloatOrDefault(common.EnvTestRatio, common.DefaultTestRatio),
		Seed:           getInt64OrDefault(common.EnvSeed, common.DefaultSeed),
		Workers:        getIntOrDefault(common.EnvWorkers, runtime.NumCPU()),
		ServerPort:     getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, common.DefaultServerURL),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestSeconds*time.Second),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		MetricsFile:    os.Getenv(common.EnvMetricsFile),
		PushgatewayURL: os.Getenv(common.EnvPushgatewayURL),
	}
	applyDerivedDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyDerivedDefaults(settings *Settings) {
	if settings.MetricsFile == "" {
		settings.MetricsFile = filepath.Join(settings.DataPath, common.TrainerMetricsFile)
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.DatasetPath == "" {
		return fmt.Errorf("dataset path cannot be empty")
	}
	if settings.ArtifactsDir == "" {
		return fmt.Errorf("artifacts directory cannot be empty")
	}
	if settings.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	// Validate search parameters
	if settings.NIter < common.MinNIter || settings.NIter > common.MaxNIter {
		return fmt.Errorf("n_iter must be between %d and %d, got %d", common.MinNIter, common.MaxNIter, settings.NIter)
	}
	if settings.KFolds < common.MinKFolds || settings.KFolds > common.MaxKFolds {
		return fmt.Errorf("k_folds must be between %d and %d, got %d", common.MinKFolds, common.MaxKFolds, settings.KFolds)
	}
	if settings.TestRatio < common.MinTestRatio || settings.TestRatio > common.MaxTestRatio {
		return fmt.Errorf("test ratio must be between %.2f and %.2f, got %f", common.MinTestRatio, common.MaxTestRatio, settings.TestRatio)
	}
	if settings.Workers < 1 || settings.Workers > 256 {
		return fmt.Errorf("workers must be between 1 and 256, got %d", settings.Workers)
	}

	// Validate server
	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 1m, got %v", settings.RequestTimeout)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
