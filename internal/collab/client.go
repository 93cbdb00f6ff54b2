package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/suggest"
)

// Operation names used in errors and metrics
const (
	OpUpload   = "upload"
	OpGenerate = "generate"
	OpSuggest  = "suggest"
)

const maxErrorBody = 2048

// Client calls the upload, generation and suggestion services
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}
	logger     *slog.Logger
	metrics    *metrics.Metrics

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains collaborator client configuration
type Config struct {
	BaseURL       string
	APIKey        string // optional bearer token
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration // base of the exponential backoff
	UserAgent     string
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a collaborator client
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "scribe-ia-aurora/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
		metrics:    m,
	}, nil
}

// Upload sends the encoded consultation audio and returns its transcript
func (c *Client) Upload(ctx context.Context, encounterID string, wav *audio.EncodedAudio) (*UploadResult, error) {
	if wav == nil || wav.Len() == 0 {
		return nil, &UpstreamError{Op: OpUpload, Err: errors.New("no audio to upload")}
	}

	endpoint := c.config.BaseURL + "/ingest/upload?" + url.Values{"encounter_id": {encounterID}}.Encode()
	data := wav.Bytes()

	build := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		fw, err := writer.CreateFormFile("wav", encounterID+".wav")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", fmt.Errorf("failed to write audio data: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
		}
		return &buf, writer.FormDataContentType(), nil
	}

	var result UploadResult
	if err := c.call(ctx, OpUpload, endpoint, build, &result); err != nil {
		return nil, err
	}
	if result.EncounterID == "" {
		result.EncounterID = encounterID
	}
	if result.Transcript == nil {
		result.Transcript = []Turn{}
	}

	c.logger.Info("Audio uploaded",
		slog.String("encounter_id", encounterID),
		slog.Int("bytes", len(data)),
		slog.Int("turns", len(result.Transcript)),
	)
	return &result, nil
}

// Generate asks the generation service for the structured record, FHIR
// bundle and built-in suggestions of a transcript.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Generated, error) {
	if req.SchemaID == "" {
		req.SchemaID = "auto"
	}
	if req.Transcript == nil {
		req.Transcript = []Turn{}
	}

	var raw struct {
		Record      json.RawMessage `json:"json_clinico"`
		FHIRBundle  json.RawMessage `json:"fhir_bundle"`
		Suggestions json.RawMessage `json:"cds_suggestions"`
	}
	if err := c.call(ctx, OpGenerate, c.config.BaseURL+"/nlp/generate", jsonBody(req), &raw); err != nil {
		return nil, err
	}

	out := &Generated{FHIRBundle: raw.FHIRBundle, Suggestions: []suggest.Suggestion{}}

	rec := record.New()
	if len(raw.Record) > 0 {
		parsed, err := record.Parse(raw.Record)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", OpGenerate, err)
		}
		rec = parsed
	}
	out.Record = rec

	if len(raw.Suggestions) > 0 {
		list, err := suggest.Parse(raw.Suggestions)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", OpGenerate, err)
		}
		out.Suggestions = list
	}
	return out, nil
}

// Suggest fetches decision-support suggestions for a record summary
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) ([]suggest.Suggestion, error) {
	var raw json.RawMessage
	if err := c.call(ctx, OpSuggest, c.config.BaseURL+"/cds/suggest", jsonBody(req), &raw); err != nil {
		return nil, err
	}
	list, err := suggest.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpSuggest, err)
	}
	c.metrics.RecordSuggestions(suggest.SourceExternal, len(list))
	return list, nil
}

// bodyFunc builds a fresh request body for each attempt
type bodyFunc func() (io.Reader, string, error)

func jsonBody(v any) bodyFunc {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// call performs op with retries and decodes a JSON reply into out
func (c *Client) call(ctx context.Context, op, endpoint string, body bodyFunc, out any) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return &UpstreamError{Op: op, Err: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordUpstreamRetry(op)

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBackoff
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			c.logger.Warn("Retrying upstream call",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return c.fail(op, startTime, &UpstreamError{Op: op, Err: ctx.Err()})
			}
		}

		err := c.doRequest(ctx, op, endpoint, body, out)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			c.metrics.RecordUpstreamRequest(op, time.Since(startTime).Seconds(), false)
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}

	return c.fail(op, startTime, lastErr)
}

func (c *Client) fail(op string, startTime time.Time, err error) error {
	c.incrementFailedRequests()
	c.metrics.RecordUpstreamRequest(op, time.Since(startTime).Seconds(), true)
	c.logger.Error("Upstream call failed", slog.String("op", op), slog.String("error", err.Error()))
	return err
}

// doRequest performs a single HTTP request
func (c *Client) doRequest(ctx context.Context, op, endpoint string, body bodyFunc, out any) error {
	reader, contentType, err := body()
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(text)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", record.ErrMalformedJSON, err)}
	}
	return nil
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to finish
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
