package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"term-deposit/internal/features"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	StatusSuccess = "Success"
	StatusError   = "Error"

	requestIDHeader = "X-Request-ID"
	maxRequestBytes = 1 << 20

	defaultRequestTimeout = 10 * time.Second
)

// PredictionResponse is the body of POST /predict.
type PredictionResponse struct {
	Status      string  `json:"status"`
	Prediction  string  `json:"prediction,omitempty"`
	Probability float64 `json:"probability"`
	Error       string  `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ModelServer provides HTTP API for model predictions
type ModelServer struct {
	predictor PredictorInterface
	server    *http.Server
}

// NewModelServer routes the prediction API. timeout bounds reading a request
// and writing its response; zero selects defaultRequestTimeout. gatherer backs
// /metrics and defaults to the global registry when nil.
func NewModelServer(predictor PredictorInterface, port int, timeout time.Duration, gatherer prometheus.Gatherer) *ModelServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ms := &ModelServer{predictor: predictor}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	ms.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       120 * time.Second,
	}

	return ms
}

// Handler exposes the router, mainly for tests.
func (ms *ModelServer) Handler() http.Handler { return ms.server.Handler }

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Bool("ready", ms.predictor.Ready()).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// DecodeRecord reads a JSON object into a raw record. Numbers are kept as
// json.Number so the encoder sees the literal the client sent.
func DecodeRecord(data []byte) (features.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record features.RawRecord
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return record, nil
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := w.Header().Get(requestIDHeader)

	var body bytes.Buffer
	if _, err := body.ReadFrom(http.MaxBytesReader(w, r.Body, maxRequestBytes)); err != nil {
		writePrediction(w, http.StatusBadRequest, PredictionResponse{Status: StatusError, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	record, err := DecodeRecord(body.Bytes())
	if err != nil {
		writePrediction(w, http.StatusBadRequest, PredictionResponse{Status: StatusError, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	outcome, err := ms.predictor.Predict(record)
	if err != nil {
		status := predictionStatus(err)
		log.Warn().Err(err).Str("request_id", reqID).Int("status", status).Msg("prediction failed")
		writePrediction(w, status, PredictionResponse{Status: StatusError, Error: err.Error()})
		return
	}

	log.Debug().
		Str("request_id", reqID).
		Float64("probability", outcome.Probability).
		Str("prediction", outcome.Label).
		Dur("latency", time.Since(start)).
		Msg("prediction served")
	writePrediction(w, http.StatusOK, PredictionResponse{
		Status:      StatusSuccess,
		Prediction:  outcome.Label,
		Probability: outcome.Probability,
	})
}

// predictionStatus maps a Predict error to an HTTP status code.
func predictionStatus(err error) int {
	var (
		loadErr     *ArtifactLoadError
		encodingErr *features.EncodingError
		mismatchErr *features.SchemaMismatchError
	)
	switch {
	case errors.As(err, &loadErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &encodingErr), errors.As(err, &mismatchErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writePrediction(w http.ResponseWriter, status int, resp PredictionResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !ms.predictor.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Ready: false, Error: ms.predictor.Err().Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Ready: true, Version: ms.predictor.Version()})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	meta, ok := ms.predictor.Metadata()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Ready: false, Error: ms.predictor.Err().Error()})
		return
	}
	schema, _ := ms.predictor.Schema()
	writeJSON(w, http.StatusOK, map[string]any{
		"metadata": meta,
		"schema":   schema.Document(),
	})
}
