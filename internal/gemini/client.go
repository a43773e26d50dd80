package gemini

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

	"log/slog"
)

// ErrNoAPIKey indicates the provider credential is not configured.
var ErrNoAPIKey = errors.New("gemini: api key not configured")

// ErrNoCandidates indicates the provider returned an empty answer set.
var ErrNoCandidates = errors.New("gemini: response contained no candidates")

// APIError reports a non-success provider response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: request failed with status %d", e.Status)
	}
	return fmt.Sprintf("gemini: request failed (%d): %s", e.Status, e.Message)
}

// Client talks to the Gemini generateContent REST API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	imageModel := strings.TrimSpace(cfg.ImageModel)
	if imageModel == "" {
		imageModel = model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Generate sends a prompt with a system instruction and returns plain text.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.generate(ctx, c.model, buildRequest(system, prompt, nil, nil))
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

// GenerateGrounded answers with Google Search grounding and returns cited
// sources alongside the text. The provider may cite the same document from
// several passages; callers dedupe.
func (c *Client) GenerateGrounded(ctx context.Context, system, prompt string) (string, []WebSource, error) {
	req := buildRequest(system, prompt, nil, []Tool{{GoogleSearch: &GoogleSearch{}}})
	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return "", nil, err
	}
	text, err := firstText(resp)
	if err != nil {
		return "", nil, err
	}
	var sources []WebSource
	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				sources = append(sources, *chunk.Web)
			}
		}
	}
	return text, sources, nil
}

// GenerateImage asks the image model for a picture and returns the first
// inline image part.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*InlineData, error) {
	req := buildRequest("", prompt, &GenerationConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}, nil)
	resp, err := c.generate(ctx, c.imageModel, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return part.InlineData, nil
		}
	}
	return nil, nil
}

// GenerateStructured requests strict JSON output conforming to schema and
// returns the raw JSON text for the caller to decode.
func (c *Client) GenerateStructured(ctx context.Context, system, prompt string, schema map[string]any) (string, error) {
	req := buildRequest(system, prompt, &GenerationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   schema,
	}, nil)
	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

func buildRequest(system, prompt string, genCfg *GenerationConfig, tools []Tool) Request {
	req := Request{
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: prompt}}},
		},
		GenerationConfig: genCfg,
		Tools:            tools,
	}
	if strings.TrimSpace(system) != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	return req
}

func (c *Client) generate(ctx context.Context, model string, reqBody Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	// One retry with backoff on rate limiting; everything else is terminal.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("perform request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &APIError{Status: resp.StatusCode, Message: "rate limit exceeded"}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		var decoded Response
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if decoded.Error != nil {
			return nil, &APIError{Status: decoded.Error.Code, Message: decoded.Error.Message}
		}
		if c.logger != nil {
			c.logger.Debug("gemini call completed", "model", model, "duration_ms", time.Since(start).Milliseconds())
		}
		return &decoded, nil
	}
	return nil, lastErr
}

func firstText(resp *Response) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
