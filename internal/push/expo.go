package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// DefaultEndpoint is the Expo push gateway.
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// Sender delivers out-of-band push notifications. Delivery is best effort;
// callers treat failures as non-fatal.
type Sender interface {
	Send(ctx context.Context, token, title, body string, data map[string]interface{}) error
}

// ExpoClient sends notifications through the Expo push API with one bounded
// retry behind a circuit breaker.
type ExpoClient struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewExpoClient constructs an ExpoClient. An empty endpoint uses the public
// Expo gateway.
func NewExpoClient(endpoint string) *ExpoClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &ExpoClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "expo-push",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type expoRequest struct {
	To    string                 `json:"to"`
	Sound string                 `json:"sound"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Send posts one notification. Retries at most once on transient failure.
func (c *ExpoClient) Send(ctx context.Context, token, title, body string, data map[string]interface{}) error {
	payload, err := json.Marshal(expoRequest{
		To:    token,
		Sound: "default",
		Title: title,
		Body:  body,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	operation := func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.post(ctx, payload)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	return backoff.Retry(operation, policy)
}

func (c *ExpoClient) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("expo push: unexpected status %d", resp.StatusCode)
	}
	return nil
}
