package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"term-deposit/internal/cfg"
	"term-deposit/internal/logging"
	"term-deposit/internal/metrics"
	"term-deposit/internal/ml"

	"github.com/rs/zerolog/log"
)

func main() {
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
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

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	predictor := loadPredictor(c, mw)

	srv := ml.NewModelServer(predictor, c.ServerPort, c.RequestTimeout, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("model server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down model server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown model server")
	}
	log.Info().Float64("failure_rate", m.FailureRate()).Msg("Model server stopped")
}

// loadPredictor serves the active registry version. A missing registry or
// active version leaves the server up but not ready.
func loadPredictor(c cfg.Settings, mw *metrics.MetricsWrapper) *ml.Predictor {
	mm, err := ml.NewModelManager(c.ArtifactsDir)
	if err != nil {
		log.Warn().Err(err).Msg("model registry unavailable")
		return ml.NewUnavailablePredictor(err, mw)
	}
	current, ok := mm.GetCurrentVersion()
	if !ok {
		err := errors.New("no active model version, run the trainer first")
		log.Warn().Err(err).Str("artifacts_dir", c.ArtifactsDir).Msg("predictor not ready")
		return ml.NewUnavailablePredictor(err, mw)
	}
	return ml.Load(current.Path, mw)
}
