// Package contentsvc implements the HTTP client for the external content
// service: item generation and answer evaluation. Calls are wrapped in a
// retry policy and a circuit breaker; evaluation additionally carries a
// bounded deadline because the submission path must never stall on it.
package contentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
	"github.com/vocaquest/practice-hub/pkg/circuitbreaker"
	"github.com/vocaquest/practice-hub/pkg/logger"
	"github.com/vocaquest/practice-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the content service client.
type ClientConfig struct {
	// BaseURL is the content service base URL.
	BaseURL string

	// APIKey authenticates requests (Bearer token).
	APIKey string

	// Timeout is the HTTP request timeout for generation calls.
	Timeout time.Duration

	// EvaluateTimeout bounds a single evaluation call. Kept short: the
	// caller substitutes a deterministic fallback on expiry.
	EvaluateTimeout time.Duration

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		EvaluateTimeout: 8 * time.Second,
		MaxRetries:      2,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the content service API client. It implements both
// content.Generator and content.Evaluator.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	mapper     *Mapper
}

// NewClient creates a new content service client.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("content_client"))

	breaker := circuitbreaker.New("content-service",
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log,
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxRetries+1),
			retry.WithInitialDelay(200*time.Millisecond),
		),
		breaker: breaker,
		mapper:  NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATION
// ══════════════════════════════════════════════════════════════════════════════

// GenerateItems requests the ordered item list for a (vocabulary set, kind)
// pair. The service is expected to be deterministic per pair, but callers
// still persist the first result and never regenerate.
func (c *Client) GenerateItems(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) ([]content.Item, error) {
	descriptor, err := practice.DescriptorFor(kind)
	if err != nil {
		return nil, err
	}

	reqDTO := GenerateRequestDTO{
		VocabSetID: vocabSetID.String(),
		Kind:       kind.String(),
		ItemCount:  descriptor.ItemCount,
	}

	var respDTO GenerateResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/items/generate", reqDTO, &respDTO); err != nil {
		return nil, err
	}

	items, err := c.mapper.ItemsToDomain(respDTO.Items, kind, descriptor)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, shared.ErrEmptyItemSet
	}

	c.logger.Info("items generated",
		logger.VocabSetID(vocabSetID.String()),
		logger.Kind(kind.String()),
		logger.Int("count", len(items)),
	)
	return items, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateItem scores a submitted answer against an item. The call carries
// its own deadline on top of the caller's context; either expiring surfaces
// as a timeout error the caller absorbs with a fallback evaluation.
func (c *Client) EvaluateItem(ctx context.Context, kind practice.ActivityKind, item content.Item, answer map[string]interface{}, evalContext map[string]interface{}) (content.Evaluation, error) {
	if c.config.EvaluateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.EvaluateTimeout)
		defer cancel()
	}

	reqDTO := EvaluateRequestDTO{
		Kind:      kind.String(),
		ItemID:    item.ID.String(),
		Prompt:    item.Prompt,
		Payload:   item.Payload,
		AnswerKey: item.AnswerKey,
		MaxScore:  item.MaxScore,
		Answer:    answer,
		Context:   evalContext,
	}

	var respDTO EvaluationDTO
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/items/evaluate", reqDTO, &respDTO); err != nil {
		return content.Evaluation{}, err
	}

	descriptor, err := practice.DescriptorFor(kind)
	if err != nil {
		return content.Evaluation{}, err
	}
	return c.mapper.EvaluationToDomain(respDTO, descriptor), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request through the circuit breaker with
// retries on transient failures.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			err := c.doSingleRequest(ctx, method, path, body, result)
			if err == nil {
				return nil
			}
			if isTransient(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		})
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.WrapError("content", "Request", shared.ErrServiceUnavailable, "content service circuit open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("content", "Request", shared.ErrTimeout, "content service request timed out", err)
	default:
		var apiErr *APIErrorDTO
		if errors.As(err, &apiErr) && !apiErr.IsServerError() {
			return shared.WrapError("content", "Request", shared.ErrInvalidInput, apiErr.Message, err)
		}
		return shared.WrapError("content", "Request", shared.ErrServiceUnavailable, "content service request failed", err)
	}
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("content service status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return shared.WrapError("content", "Parse", shared.ErrInvalidFormat, "invalid response payload", err)
		}
	}
	return nil
}

// isTransient reports whether the error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}

	msg := err.Error()
	for _, marker := range []string{"timeout", "connection refused", "temporary", "reset", "EOF", "status 5"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsHealthy checks if the content service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	err := c.doSingleRequest(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil
}
