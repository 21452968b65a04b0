// Package api implements the HTTP collaborator the flag manager fetches
// rule sets from and reports flag usage to.
//
// Fetching is a two-step exchange: a metadata request locates the
// distribution endpoint and path for the environment, then the document
// itself is requested from that location. The whole exchange is retried
// with exponential backoff.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/beacondeck/beacon-go/internal/core"
	"github.com/beacondeck/beacon-go/internal/logging"
	"github.com/beacondeck/beacon-go/internal/metrics"
)

const (
	defaultMaxAttempts   = 3
	defaultRetryInterval = 500 * time.Millisecond
	defaultHTTPTimeout   = 10 * time.Second

	instanceHeader = "X-Beacon-Instance"
)

// Config holds configuration for the api client.
type Config struct {
	// Endpoint is the base URL of the beacon service.
	Endpoint string
	// Token identifies the environment; it is both a path segment and the
	// bearer credential.
	Token string
	// MaxAttempts caps fetch attempts, retries included. Defaults to 3.
	MaxAttempts int
	// RetryInterval is the initial backoff delay. Defaults to 500ms.
	RetryInterval time.Duration
	// HTTPClient is optional; a default client with an otelhttp-wrapped
	// transport and a 10s timeout is used when nil.
	HTTPClient *http.Client
	// Logger is optional; records are dropped when nil.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Client fetches rule sets and reports flag usage over HTTP.
type Client struct {
	endpoint      string
	token         string
	maxAttempts   int
	retryInterval time.Duration
	httpClient    *http.Client
	instanceID    string
	log           *slog.Logger
	metrics       *metrics.Metrics
}

// NewClient returns a new api client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		token:         cfg.Token,
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
		httpClient:    hc,
		instanceID:    uuid.NewString(),
		log:           log,
		metrics:       cfg.Metrics,
	}
}

// -- wire types --------------------------------------------------------------

type metadataResponse struct {
	Distribution struct {
		Endpoint string `json:"endpoint"`
		Path     string `json:"path"`
	} `json:"distribution"`
}

type usageReport struct {
	Key     string        `json:"key"`
	Context *core.Context `json:"context,omitempty"`
}

// -- rule fetching -----------------------------------------------------------

// GetRules fetches the current rule-set document. It returns both the
// parsed document and the raw bytes, so the caller can write the exact
// serialized form through to its cache.
func (c *Client) GetRules(ctx context.Context) (core.RuleSet, []byte, error) {
	var (
		ruleSet core.RuleSet
		raw     []byte
	)

	start := time.Now()
	operation := func() error {
		if c.metrics != nil {
			c.metrics.FetchAttemptsTotal.Inc()
		}

		meta, err := c.fetchMetadata(ctx)
		if err != nil {
			return err
		}
		data, err := c.fetchDocument(ctx, meta)
		if err != nil {
			return err
		}
		parsed, err := core.ParseRuleSet(data)
		if err != nil {
			// A malformed document will not improve on retry.
			return backoff.Permanent(&InvalidRulesError{Err: err})
		}

		ruleSet = parsed
		raw = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx))

	if c.metrics != nil {
		c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.FetchFailuresTotal.Inc()
		}
	}
	if err != nil {
		return core.RuleSet{}, nil, err
	}
	return ruleSet, raw, nil
}

func (c *Client) fetchMetadata(ctx context.Context) (metadataResponse, error) {
	url := fmt.Sprintf("%s/v1/environments/%s/metadata", c.endpoint, c.token)
	body, err := c.get(ctx, url)
	if err != nil {
		return metadataResponse{}, err
	}

	var meta metadataResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return metadataResponse{}, &FetchRulesError{Message: "decode metadata: " + err.Error(), Err: err}
	}
	if meta.Distribution.Endpoint == "" || meta.Distribution.Path == "" {
		return metadataResponse{}, &FetchRulesError{Message: "metadata carries no distribution location"}
	}
	return meta, nil
}

func (c *Client) fetchDocument(ctx context.Context, meta metadataResponse) ([]byte, error) {
	return c.get(ctx, strings.TrimRight(meta.Distribution.Endpoint, "/")+meta.Distribution.Path)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchRulesError{Message: "create request: " + err.Error(), Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchRulesError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &FetchRulesError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchRulesError{Message: "read response: " + err.Error(), Err: err}
	}
	return body, nil
}

// -- usage reporting ---------------------------------------------------------

// ReportUsage notifies the service that key was evaluated, attaching the
// serialized evaluation context when present. Best effort: the caller is
// expected to log and drop any error.
func (c *Client) ReportUsage(ctx context.Context, key string, evalCtx *core.Context) error {
	payload, err := json.Marshal(usageReport{Key: key, Context: evalCtx})
	if err != nil {
		return fmt.Errorf("marshal usage report: %w", err)
	}

	url := fmt.Sprintf("%s/v1/environments/%s/usage", c.endpoint, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create usage request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post usage report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("usage report rejected: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(instanceHeader, c.instanceID)
	req.Header.Set("Accept", "application/json")
}
