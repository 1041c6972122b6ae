// Package client talks to a running prediction server.
package client

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"term-deposit/internal/features"
	"term-deposit/internal/ml"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is returned when the server answers a prediction with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("predictor: %d %s", e.StatusCode, e.Message)
}

// Predict scores one customer record.
func (c *Client) Predict(record features.RawRecord) (ml.Outcome, error) {
	resp := &ml.PredictionResponse{}
	r, err := c.rest.R().
		SetBody(record).
		SetResult(resp).
		SetError(resp).
		Post(c.base + "/predict")
	if err != nil {
		return ml.Outcome{}, fmt.Errorf("request failed: %w", err)
	}
	if r.StatusCode() != http.StatusOK || resp.Status != ml.StatusSuccess {
		msg := resp.Error
		if msg == "" {
			msg = r.String()
		}
		return ml.Outcome{}, &APIError{StatusCode: r.StatusCode(), Message: msg}
	}
	return ml.Outcome{Probability: resp.Probability, Label: resp.Prediction}, nil
}

// Health reports the server readiness. A not-ready server still yields a
// HealthResponse; only transport failures are errors.
func (c *Client) Health() (ml.HealthResponse, error) {
	var health ml.HealthResponse
	r, err := c.rest.R().
		SetResult(&health).
		SetError(&health).
		Get(c.base + "/health")
	if err != nil {
		return ml.HealthResponse{}, fmt.Errorf("request failed: %w", err)
	}
	if r.StatusCode() != http.StatusOK && r.StatusCode() != http.StatusServiceUnavailable {
		return ml.HealthResponse{}, &APIError{StatusCode: r.StatusCode(), Message: r.String()}
	}
	return health, nil
}
