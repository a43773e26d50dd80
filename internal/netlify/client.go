package netlify

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
)

// ErrNoToken indicates no Netlify credential is configured.
var ErrNoToken = errors.New("netlify: token not configured")

// APIError represents an error response from the Netlify API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("netlify request failed with status %d", e.Status)
	}
	return fmt.Sprintf("netlify request failed (%d): %s", e.Status, e.Message)
}

// Client creates sites linked to a GitHub repository.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a Client. An empty base URL targets the hosted API.
func New(baseURL, token string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "https://api.netlify.com/api/v1"
	}
	return &Client{
		baseURL:    trimmed,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Site describes a created site.
type Site struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	SSLURL string `json:"ssl_url"`
}

// PublicURL prefers the HTTPS address when the API reports one.
func (s Site) PublicURL() string {
	if s.SSLURL != "" {
		return s.SSLURL
	}
	return s.URL
}

type createSiteRequest struct {
	Repo          repoSettings  `json:"repo"`
	BuildSettings buildSettings `json:"build_settings"`
}

type repoSettings struct {
	Provider string `json:"provider"`
	Repo     string `json:"repo"`
	Private  bool   `json:"private"`
	Branch   string `json:"branch"`
}

type buildSettings struct {
	Cmd string `json:"cmd,omitempty"`
	Dir string `json:"dir,omitempty"`
}

// CreateSite provisions a site that builds from the given GitHub repository.
// fullName is the "owner/repo" identifier, branch the deploy branch.
func (c *Client) CreateSite(ctx context.Context, fullName, branch string) (Site, error) {
	if c.token == "" {
		return Site{}, ErrNoToken
	}
	payload, err := json.Marshal(createSiteRequest{
		Repo: repoSettings{
			Provider: "github",
			Repo:     fullName,
			Private:  false,
			Branch:   branch,
		},
	})
	if err != nil {
		return Site{}, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sites", bytes.NewReader(payload))
	if err != nil {
		return Site{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Site{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Site{}, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	var site Site
	if err := json.NewDecoder(resp.Body).Decode(&site); err != nil {
		return Site{}, fmt.Errorf("decode response: %w", err)
	}
	return site, nil
}

func extractError(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}
