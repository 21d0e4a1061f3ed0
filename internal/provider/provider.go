package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/washsense/washsense/internal/cue"
	"github.com/washsense/washsense/internal/metrics"
)

// visualPrompt is the fixed instruction sent with every frame. The model
// must answer with a JSON object holding exactly the seven visual keys.
const visualPrompt = `Return ONLY JSON, no explanation: ` +
	`{"hands_visible":0-1,"hands_under_water":0-1,"hands_on_soap":0-1,` +
	`"foam_visible":0-1,"towel_drying":0-1,"hands_touch_clothes":0-1,` +
	`"blower_visible":0-1}. ` +
	`hands_on_soap: hands touching or right next to soap, not just soap visible. ` +
	`hands_touch_clothes: hands rubbing or wiping against clothes worn on the person body.`

// Endpoint is the capability the pool dispatches against. The remote VLM
// provider implements it; a future local-model provider would too.
type Endpoint interface {
	Name() string
	BackedOff() bool
	HealthCheck(ctx context.Context) bool
	Infer(ctx context.Context, frameB64 string) (cue.Map, error)
}

// Config contains the settings for one VLM endpoint.
type Config struct {
	Name      string
	BaseURL   string // OpenAI-compatible base, e.g. http://localhost:8000/v1
	ModelName string // used when /models resolution fails
	Timeout   time.Duration
	Backoff   time.Duration
	MaxTokens int
}

// Provider wraps one OpenAI-compatible VLM endpoint. Inference fails
// closed: any failure yields the neutral fallback cue map, and transport
// failures additionally suspend dispatch to this endpoint for the backoff
// window. Backoff is a pure expiry-timestamp test; no timer runs.
type Provider struct {
	name          string
	baseURL       string
	fallbackModel string
	timeout       time.Duration
	backoff       time.Duration
	maxTokens     int

	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	modelName     string
	modelResolved bool
	failUntil     time.Time

	// Statistics
	totalRequests   uint64
	successRequests uint64
	fallbackResults uint64
	backoffsEntered uint64

	now func() time.Time
}

// Stats reports provider counters for monitoring.
type Stats struct {
	Name            string `json:"name"`
	ModelName       string `json:"model_name"`
	BackedOff       bool   `json:"backed_off"`
	TotalRequests   uint64 `json:"total_requests"`
	SuccessRequests uint64 `json:"success_requests"`
	FallbackResults uint64 `json:"fallback_results"`
	BackoffsEntered uint64 `json:"backoffs_entered"`
}

// New creates a provider for one endpoint. The metrics collector may be
// nil.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL cannot be empty", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 10 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 80
	}

	return &Provider{
		name:          cfg.Name,
		baseURL:       cfg.BaseURL,
		fallbackModel: cfg.ModelName,
		timeout:       cfg.Timeout,
		backoff:       cfg.Backoff,
		maxTokens:     cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Name returns the configured endpoint name.
func (p *Provider) Name() string {
	return p.name
}

// BackedOff reports whether the endpoint is currently suspended.
func (p *Provider) BackedOff() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.failUntil)
}

func (p *Provider) enterBackoff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failUntil = p.now().Add(p.backoff)
	p.backoffsEntered++
	if p.metrics != nil {
		p.metrics.RecordProviderBackoff(p.name)
	}
}

// ModelName returns the resolved model identifier, or "" when unresolved.
func (p *Provider) ModelName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modelName
}

// HealthCheck lists the endpoint's models. Success with at least one model
// resolves and caches the served model name. Any failure enters backoff.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	models, err := p.listModels(ctx)
	if err != nil {
		p.logger.Error("Health check failed",
			slog.String("provider", p.name),
			slog.String("error", err.Error()),
		)
		p.enterBackoff()
		return false
	}
	if len(models) == 0 {
		p.logger.Warn("Health check: no models served",
			slog.String("provider", p.name),
		)
		return false
	}

	p.mu.Lock()
	p.modelName = models[0]
	p.modelResolved = true
	p.mu.Unlock()

	p.logger.Info("Health check OK",
		slog.String("provider", p.name),
		slog.String("model", models[0]),
	)
	return true
}

// Infer runs one inference call for a base64 JPEG frame. An empty frame
// yields the all-zero map. A backed-off endpoint, a transport failure or
// unusable model output all yield the neutral fallback map; only transport
// failures (dial, timeout) enter backoff.
func (p *Provider) Infer(ctx context.Context, frameB64 string) (cue.Map, error) {
	if frameB64 == "" {
		return cue.ZeroVisual(), nil
	}
	if p.BackedOff() {
		p.countFallback()
		return cue.Fallback(), nil
	}

	p.mu.Lock()
	p.totalRequests++
	p.mu.Unlock()

	model := p.resolveModel(ctx)

	body, err := json.Marshal(chatRequest{
		Model:     model,
		MaxTokens: p.maxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageRef{URL: "data:image/jpeg;base64," + frameB64}},
				{Type: "text", Text: visualPrompt},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	start := p.now()
	text, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		p.logger.Error("Inference transport failure, backing off",
			slog.String("provider", p.name),
			slog.Duration("backoff", p.backoff),
			slog.String("error", err.Error()),
		)
		p.enterBackoff()
		p.countFallback()
		p.recordInference(true, start)
		return cue.Fallback(), nil
	}
	if text == "" {
		p.countFallback()
		p.recordInference(true, start)
		return cue.Fallback(), nil
	}

	cues, err := parseCues(text)
	if err != nil {
		// The endpoint is reachable, it just returned bad content:
		// degrade without backoff.
		p.logger.Warn("Unparseable inference response",
			slog.String("provider", p.name),
			slog.String("error", err.Error()),
		)
		p.countFallback()
		p.recordInference(true, start)
		return cue.Fallback(), nil
	}

	p.mu.Lock()
	p.successRequests++
	p.mu.Unlock()
	p.recordInference(false, start)

	return cues, nil
}

func (p *Provider) recordInference(fellBack bool, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordInference(p.name, fellBack, p.now().Sub(start).Seconds())
}

// resolveModel returns the model name to use for inference, querying the
// endpoint once and falling back to the configured name when the query
// fails. Either way the result is cached.
func (p *Provider) resolveModel(ctx context.Context) string {
	p.mu.Lock()
	if p.modelResolved {
		name := p.modelName
		p.mu.Unlock()
		return name
	}
	p.mu.Unlock()

	name := p.fallbackModel
	if models, err := p.listModels(ctx); err == nil && len(models) > 0 {
		name = models[0]
		p.logger.Info("Resolved model name",
			slog.String("provider", p.name),
			slog.String("model", name),
		)
	} else {
		p.logger.Warn("Could not resolve model name, using configured default",
			slog.String("provider", p.name),
			slog.String("model", name),
		)
	}

	p.mu.Lock()
	p.modelName = name
	p.modelResolved = true
	p.mu.Unlock()
	return name
}

func (p *Provider) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create models request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("models request: HTTP %d", resp.StatusCode)
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// post performs one JSON POST and returns the first choice's content.
// A returned error means a transport-level failure.
func (p *Provider) post(ctx context.Context, path string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Reachable but unhappy: treat like bad content, not an outage.
		p.logger.Warn("Inference call rejected",
			slog.String("provider", p.name),
			slog.Int("status", resp.StatusCode),
		)
		return "", nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", nil
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *Provider) countFallback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbackResults++
}

// GetStats returns current provider counters.
func (p *Provider) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:            p.name,
		ModelName:       p.modelName,
		BackedOff:       p.now().Before(p.failUntil),
		TotalRequests:   p.totalRequests,
		SuccessRequests: p.successRequests,
		FallbackResults: p.fallbackResults,
		BackoffsEntered: p.backoffsEntered,
	}
}

// Wire types for the OpenAI-compatible API.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
