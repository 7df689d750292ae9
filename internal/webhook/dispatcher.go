package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// Config controls the dispatcher's retry behavior. Zero-valued fields fall
// back to the corresponding default.
type Config struct {
	MaxRetries        int           // attempts per dispatch
	InitialDelay      time.Duration // backoff before the second attempt
	MaxDelay          time.Duration // backoff ceiling
	BackoffMultiplier float64       // exponential growth factor
	Timeout           time.Duration // per-attempt HTTP timeout
}

// DefaultConfig is the retry policy used when fields are left unset.
var DefaultConfig = Config{
	MaxRetries:        5,
	InitialDelay:      1 * time.Second,
	MaxDelay:          60 * time.Second,
	BackoffMultiplier: 2,
	Timeout:           5 * time.Second,
}

// minBackoff floors every computed delay so jitter can never produce a
// near-zero sleep.
const minBackoff = 100 * time.Millisecond

// Event is one webhook delivery: an identified, typed payload posted to a
// callback URL. Constructed per dispatch call; the dispatcher persists
// nothing.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	URL      string         `json:"-"`
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result reports the outcome of a dispatch. Delivery failures are encoded
// here, never raised as errors, so callers decide whether to log or alert.
// Attempt is the 0-indexed attempt the loop ended on; after exhaustion it
// equals MaxRetries.
type Result struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempt    int    `json:"attempt"`
}

// Dispatcher delivers webhook events over HTTP with bounded retries and
// exponential backoff. Safe for concurrent use; dispatch calls share no
// mutable state.
type Dispatcher struct {
	config Config
	client *http.Client
}

// New builds a dispatcher, filling unset config fields from DefaultConfig.
func New(config Config) *Dispatcher {
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultConfig.MaxRetries
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = DefaultConfig.InitialDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = DefaultConfig.MaxDelay
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = DefaultConfig.BackoffMultiplier
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig.Timeout
	}
	return &Dispatcher{
		config: config,
		client: &http.Client{},
	}
}

// Config returns the effective retry configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Dispatch posts the event to its URL, retrying transient failures (5xx,
// 429, timeouts, network errors) with backoff until success, a permanent
// failure, or MaxRetries attempts. The call blocks its caller for the whole
// retry loop, sleeps included. ctx bounds each attempt together with the
// per-attempt timeout; there is no finer-grained way to abort the series.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) Result {
	var lastStatusCode int
	var lastError string

	for attempt := 0; attempt < d.config.MaxRetries; attempt++ {
		result := d.send(ctx, event, attempt)
		if result.Success {
			return result
		}

		lastStatusCode = result.StatusCode
		lastError = result.Error

		if !isTransient(result.StatusCode) {
			return result
		}

		if attempt < d.config.MaxRetries-1 {
			delay := backoffDelay(d.config, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{
					Success: false,
					Error:   ctx.Err().Error(),
					Attempt: attempt,
				}
			}
		}
	}

	if lastError == "" {
		lastError = "Maximum retries exhausted"
	}
	return Result{
		Success:    false,
		StatusCode: lastStatusCode,
		Error:      lastError,
		Attempt:    d.config.MaxRetries,
	}
}

func (d *Dispatcher) send(ctx context.Context, event Event, attempt int) Result {
	body := map[string]any{
		"id":        event.ID,
		"type":      event.Type,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   event.Payload,
	}
	if event.Metadata != nil {
		body["metadata"] = event.Metadata
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Attempt: attempt}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, event.URL, bytes.NewReader(data))
	if err != nil {
		return Result{Success: false, Error: err.Error(), Attempt: attempt}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", event.ID)
	req.Header.Set("X-Webhook-Type", event.Type)
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", attempt+1))

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{
				Success: false,
				Error:   fmt.Sprintf("request timeout after %s", d.config.Timeout),
				Attempt: attempt,
			}
		}
		return Result{Success: false, Error: err.Error(), Attempt: attempt}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{
			Success:    true,
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
		}
	}

	return Result{
		Success:    false,
		StatusCode: resp.StatusCode,
		Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		Attempt:    attempt,
	}
}

// isTransient reports whether a failed attempt is worth retrying. Network
// errors and timeouts carry no status code and are always transient; server
// errors and rate limiting are transient; any other status is permanent.
func isTransient(statusCode int) bool {
	if statusCode == 0 {
		return true
	}
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// backoffDelay computes the sleep before retrying the 0-indexed attempt n:
// min(initial * multiplier^n, max) with ±10% jitter, floored at minBackoff.
func backoffDelay(config Config, n int) time.Duration {
	delay := float64(config.InitialDelay)
	for i := 0; i < n; i++ {
		delay *= config.BackoffMultiplier
		if delay >= float64(config.MaxDelay) {
			break
		}
	}
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	jitter := delay * 0.1 * (rand.Float64()*2 - 1)
	delay += jitter
	if delay < float64(minBackoff) {
		delay = float64(minBackoff)
	}
	return time.Duration(delay)
}
