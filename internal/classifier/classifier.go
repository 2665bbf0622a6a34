// Package classifier is the boundary to the external sequence
// classification service.
//
// The service is a pretrained model behind a small HTTP API: POST a
// sequence string, get back a label and a confidence. Availability of the
// model is never allowed to break a login: any transport failure, non-200
// status, or malformed body degrades to a benign zero-confidence
// prediction (fail-open). The decision pipeline treats that the same as a
// genuine benign classification; the event itself is already durable, so
// a later backfill can re-classify.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nbelghith/authwatch/internal/circuitbreaker"
	"github.com/nbelghith/authwatch/internal/logging"
	"github.com/nbelghith/authwatch/internal/metrics"
)

// Prediction is the classifier's answer for one sequence.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Benign is the fail-open default substituted on any classifier failure.
func Benign() Prediction {
	return Prediction{Label: "benign", Confidence: 0}
}

// Label matching is a case-insensitive substring check against the model's
// output vocabulary. The served model emits display labels ("SQL
// Injection", "Brute Force", "Usurpation de Compte"), so the decider keys
// on stable fragments rather than exact strings.

// IsSQLInjection reports whether the label names a SQL injection signature.
func (p Prediction) IsSQLInjection() bool {
	return strings.Contains(strings.ToLower(p.Label), "sql")
}

// IsBruteForce reports whether the label names a brute-force signature.
func (p Prediction) IsBruteForce() bool {
	return strings.Contains(strings.ToLower(p.Label), "brute")
}

// IsHijack reports whether the label names an account-takeover signature.
func (p Prediction) IsHijack() bool {
	l := strings.ToLower(p.Label)
	return strings.Contains(l, "usurp") || strings.Contains(l, "hijack")
}

// Classifier maps a sequence representation to a prediction. Predict never
// returns an error: failures are already degraded to Benign inside.
type Classifier interface {
	Predict(ctx context.Context, sequence string) Prediction
}

// DefaultTimeout bounds one classifier round trip.
const DefaultTimeout = 2 * time.Second

// Config for the HTTP client.
type Config struct {
	URL     string        // prediction endpoint, e.g. http://127.0.0.1:8000/predict
	Timeout time.Duration // per-request bound; DefaultTimeout if zero
}

// Client calls the classifier service over HTTP through a circuit breaker.
type Client struct {
	url     string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBreaker sets a custom circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates an HTTP classifier client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:     cfg.URL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("classifier", 5, 15*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CircuitState exposes the breaker state for health reporting.
func (c *Client) CircuitState() circuitbreaker.State {
	return c.breaker.State()
}

type predictRequest struct {
	Sequence string `json:"sequence"`
}

// predictResponse tolerates both the documented key and the model server's
// historical "prediction_label" key.
type predictResponse struct {
	Label           string  `json:"label"`
	PredictionLabel string  `json:"prediction_label"`
	Confidence      float64 `json:"confidence"`
}

// Predict classifies a sequence. Any failure path returns Benign.
func (c *Client) Predict(ctx context.Context, sequence string) Prediction {
	log := logging.L(ctx)

	if !c.breaker.Allow() {
		metrics.ClassifierRequestsTotal.WithLabelValues("rejected").Inc()
		metrics.ClassifierFallbacksTotal.Inc()
		log.Warn("classifier circuit open, degrading to benign")
		return Benign()
	}

	pred, err := c.predict(ctx, sequence)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		metrics.ClassifierFallbacksTotal.Inc()
		log.Warn("classifier request failed, degrading to benign", "error", err)
		return Benign()
	}

	c.breaker.RecordSuccess()
	metrics.ClassifierRequestsTotal.WithLabelValues("ok").Inc()
	return pred
}

func (c *Client) predict(ctx context.Context, sequence string) (Prediction, error) {
	body, err := json.Marshal(predictRequest{Sequence: sequence})
	if err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	timer := prometheus.NewTimer(metrics.ClassifierLatency)
	resp, err := c.http.Do(req)
	timer.ObserveDuration()
	if err != nil {
		return Prediction{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Prediction{}, err
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Prediction{}, fmt.Errorf("malformed classifier response: %w", err)
	}

	label := pr.Label
	if label == "" {
		label = pr.PredictionLabel
	}
	if label == "" {
		return Prediction{}, fmt.Errorf("classifier response missing label")
	}
	if pr.Confidence < 0 || pr.Confidence > 1 {
		return Prediction{}, fmt.Errorf("classifier confidence %v out of range", pr.Confidence)
	}

	return Prediction{Label: label, Confidence: pr.Confidence}, nil
}
