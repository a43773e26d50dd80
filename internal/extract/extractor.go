package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"
)

// MaxTextLength bounds extracted text so downstream prompts stay small. The
// cap is a hard cut, not a word or sentence boundary.
const MaxTextLength = 15000

var (
	scriptPattern     = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	stylePattern      = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// FetchError reports a failed document retrieval.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Extractor fetches remote documents and reduces their markup to plain text.
type Extractor struct {
	proxyURL string
	client   *http.Client
	logger   *slog.Logger
}

// New returns an Extractor that retrieves documents through the given proxy
// endpoint (the target URL is appended URL-encoded). An empty proxy fetches
// targets directly.
func New(proxyURL string, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Extractor{
		proxyURL: strings.TrimSpace(proxyURL),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Extract fetches the target and returns its visible text, capped at
// MaxTextLength characters.
func (e *Extractor) Extract(ctx context.Context, target string) (string, error) {
	endpoint := target
	if e.proxyURL != "" {
		endpoint = e.proxyURL + url.QueryEscape(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &FetchError{URL: target, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}

	text := StripMarkup(string(body))
	if e.logger != nil {
		e.logger.Debug("document extracted", "url", target, "chars", len(text))
	}
	return text, nil
}

// StripMarkup removes script/style blocks and remaining tags, collapses
// whitespace, trims, and applies the MaxTextLength cap.
func StripMarkup(markup string) string {
	text := scriptPattern.ReplaceAllString(markup, " ")
	text = stylePattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > MaxTextLength {
		cut := MaxTextLength
		// Do not split a multi-byte rune at the cap.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
