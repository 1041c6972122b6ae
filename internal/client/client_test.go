package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"term-deposit/internal/features"
	"term-deposit/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubServer(t *testing.T, status int, body any) (*httptest.Server, *features.RawRecord) {
	t.Helper()
	var received features.RawRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&received)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestClient_Predict(t *testing.T) {
	srv, received := stubServer(t, http.StatusOK, ml.PredictionResponse{
		Status:      ml.StatusSuccess,
		Prediction:  "yes",
		Probability: 0.81,
	})

	c := New(srv.URL+"/", time.Second)
	outcome, err := c.Predict(features.RawRecord{"age": 41, "job": "management"})
	require.NoError(t, err)

	assert.Equal(t, "yes", outcome.Label)
	assert.InDelta(t, 0.81, outcome.Probability, 1e-12)
	assert.Equal(t, "management", (*received)["job"])
}

func TestClient_PredictRejected(t *testing.T) {
	srv, _ := stubServer(t, http.StatusUnprocessableEntity, ml.PredictionResponse{
		Status: ml.StatusError,
		Error:  `predict: column "age": cannot encode "old" as a number`,
	})

	_, err := New(srv.URL, time.Second).Predict(features.RawRecord{"age": "old"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "cannot encode")
}

func TestClient_PredictAgainstModelServer(t *testing.T) {
	p := ml.NewUnavailablePredictor(errors.New("no active model"), nil)
	srv := httptest.NewServer(ml.NewModelServer(p, 8000, time.Second, nil).Handler())
	defer srv.Close()

	c := New(srv.URL, time.Second)

	_, err := c.Predict(features.RawRecord{"age": 30})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	health, err := c.Health()
	require.NoError(t, err)
	assert.False(t, health.Ready)
	assert.Contains(t, health.Error, "no active model")
}

func TestClient_Health(t *testing.T) {
	srv, _ := stubServer(t, http.StatusOK, ml.HealthResponse{Ready: true, Version: "20260501-100000"})

	health, err := New(srv.URL, 0).Health()
	require.NoError(t, err)
	assert.True(t, health.Ready)
	assert.Equal(t, "20260501-100000", health.Version)
}

func TestClient_HealthUnexpectedStatus(t *testing.T) {
	srv, _ := stubServer(t, http.StatusNotFound, map[string]string{"error": "not found"})

	_, err := New(srv.URL, time.Second).Health()
	assert.Error(t, err)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 200*time.Millisecond).Predict(features.RawRecord{})
	assert.Error(t, err)
}
