package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"term-deposit/internal/cfg"
	"term-deposit/internal/dataset"
	"term-deposit/internal/features"
	"term-deposit/internal/logging"
	"term-deposit/internal/metrics"
	"term-deposit/internal/ml"
	"term-deposit/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "training file (overrides DATASET_PATH)")
		history     = flag.Int("history", 0, "list the N most recent training runs and exit")
		rollback    = flag.Bool("rollback", false, "activate the previous model version and exit")
		logLevel    = flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	if err := logging.Setup(c.LogLevel, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}

	if *datasetPath != "" {
		c.DatasetPath = *datasetPath
	}

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	switch {
	case *history > 0:
		if err := printHistory(store, *history); err != nil {
			log.Fatal().Err(err).Msg("failed to list training runs")
		}
		return
	case *rollback:
		if err := rollbackModel(c); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := train(ctx, c, store); err != nil {
		stop()
		log.Fatal().Err(err).Msg("training failed")
	}
}

// initializeStorage opens the run history. Training continues without it.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without run history")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without run history")
		return nil
	}
	return store
}

func train(ctx context.Context, c cfg.Settings, store *storage.Store) error {
	schema := features.BankMarketingSchema()
	run := &storage.RunRecord{
		StartedAt:   time.Now().UTC(),
		DatasetPath: c.DatasetPath,
		Config: ml.SearchConfig{
			NIter:     c.NIter,
			KFolds:    c.KFolds,
			TestRatio: c.TestRatio,
			Seed:      c.Seed,
			Workers:   c.Workers,
		},
	}

	tm := metrics.NewTraining()
	err := runSearch(ctx, c, schema, run, tm)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	tm.RunFinished(err)
	exportTrainingMetrics(c, tm)

	if store != nil {
		if saveErr := store.SaveRun(run); saveErr != nil {
			log.Error().Err(saveErr).Msg("failed to record training run")
		} else {
			log.Info().Str("run_id", run.ID).Bool("succeeded", run.Succeeded()).Msg("Training run recorded")
		}
	}
	return err
}

// exportTrainingMetrics hands the run's metrics to Prometheus before the
// process exits: a textfile for the node exporter and, when configured, a
// Pushgateway push. Export failures are logged and do not fail the run.
func exportTrainingMetrics(c cfg.Settings, tm *metrics.TrainingMetrics) {
	if err := tm.WriteTextfile(c.MetricsFile); err != nil {
		log.Warn().Err(err).Str("path", c.MetricsFile).Msg("failed to export training metrics")
	} else {
		log.Info().Str("path", c.MetricsFile).Msg("Training metrics written")
	}
	if c.PushgatewayURL == "" {
		return
	}
	if err := tm.Push(c.PushgatewayURL); err != nil {
		log.Warn().Err(err).Str("url", c.PushgatewayURL).Msg("failed to push training metrics")
	}
}

func runSearch(ctx context.Context, c cfg.Settings, schema features.Schema, run *storage.RunRecord, tm *metrics.TrainingMetrics) error {
	ds, err := dataset.LoadCSV(c.DatasetPath, schema)
	if err != nil {
		return err
	}
	run.Rows = ds.Len()
	run.Positives = ds.Positives()

	search, err := ml.NewSearch(run.Config, schema, tm)
	if err != nil {
		return err
	}

	model, result, err := search.Run(ctx, ds.Rows, ds.Labels)
	if err != nil {
		var abort *ml.SearchAbortError
		if errors.As(err, &abort) {
			log.Error().Str("stage", abort.Stage.String()).Int("config", abort.Config).Int("fold", abort.Fold).Msg(abort.Reason)
		}
		return err
	}
	run.Result = result

	mm, err := ml.NewModelManager(c.ArtifactsDir)
	if err != nil {
		return err
	}
	version := ml.NewVersionID(time.Now())
	published, err := mm.Publish(model.WithVersion(version), ml.ModelMetrics{
		CVScore:         result.BestCVScore,
		TestScore:       result.TestScore,
		TrainingSamples: result.TrainRows,
		TestSamples:     result.TestRows,
	})
	if err != nil {
		return err
	}
	run.Version = version

	logImportance(model.Metadata().FeatureImportance, 10)
	log.Info().
		Str("version", version).
		Str("artifacts_dir", published.Path).
		Int("best_config", result.BestIndex).
		Float64("cv_roc_auc", result.BestCVScore).
		Float64("test_roc_auc", result.TestScore).
		Float64("imbalance_weight", result.ImbalanceWeight).
		Msg("Model trained and activated")
	return nil
}

func logImportance(importance map[string]float64, top int) {
	cols := make([]string, 0, len(importance))
	for col := range importance {
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return importance[cols[i]] > importance[cols[j]] })
	if len(cols) > top {
		cols = cols[:top]
	}
	for i, col := range cols {
		log.Info().Int("rank", i+1).Str("column", col).Float64("importance", importance[col]).Msg("Feature importance")
	}
}

func rollbackModel(c cfg.Settings) error {
	mm, err := ml.NewModelManager(c.ArtifactsDir)
	if err != nil {
		return err
	}
	if err := mm.Rollback(); err != nil {
		return err
	}
	current, _ := mm.GetCurrentVersion()
	log.Info().Str("version", current.Version).Msg("Rolled back model")
	return nil
}

func printHistory(store *storage.Store, limit int) error {
	if store == nil {
		return errors.New("run history is unavailable")
	}
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		cv, test := 0.0, 0.0
		if r.Result != nil {
			cv, test = r.Result.BestCVScore, r.Result.TestScore
		}
		if !r.Succeeded() {
			status = "failed: " + r.Error
		}
		fmt.Printf("%s  %s  rows=%d positives=%d cv_auc=%.4f test_auc=%.4f version=%s  %s\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Rows, r.Positives, cv, test, r.Version, status)
	}
	return nil
}
