// Package translate proxies text to the Google Cloud Translation v2 API.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/observability"
)

// DefaultHeadline is the dashboard title in English.
const DefaultHeadline = "Drought Early Warning System"

// Languages are the dashboard languages: English, Somali, and Afar.
var Languages = []string{"en", "so", "aa"}

var (
	// ErrMissingKey is returned when no API key is configured.
	ErrMissingKey = errors.New("missing GOOGLE_TRANSLATE_API_KEY")
	// ErrMissingInput is returned for an empty query or target language.
	ErrMissingInput = errors.New("missing q or target")
)

// APIError is a non-200 reply from the translation API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("translate API error: status %d: %s", e.StatusCode, e.Body)
}

// Texts is a query that may be sent as a single string or a list.
type Texts []string

// UnmarshalJSON accepts either "text" or ["a", "b"].
func (t *Texts) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*t = nil
		} else {
			*t = Texts{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("q must be a string or a list of strings: %w", err)
	}
	*t = many
	return nil
}

// Client calls the Translation v2 API.
type Client struct {
	key        string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a translation client. An empty key is allowed; every
// call then fails with ErrMissingKey.
func NewClient(key string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		key: key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://translation.googleapis.com/language/translate/v2",
		metrics: metrics,
		logger:  logger,
	}
}

// Translate translates every text in q into target. source may be empty to
// let the API detect it.
func (c *Client) Translate(ctx context.Context, q []string, target, source string) ([]string, error) {
	if c.key == "" {
		c.metrics.TranslateCalls.WithLabelValues("skipped").Inc()
		return nil, ErrMissingKey
	}
	if len(q) == 0 || target == "" {
		c.metrics.TranslateCalls.WithLabelValues("skipped").Inc()
		return nil, ErrMissingInput
	}

	form := url.Values{"q": q}
	form.Set("target", target)
	if source != "" {
		form.Set("source", source)
	}
	form.Set("format", "text")
	form.Set("key", c.key)

	out, err := c.doRequest(ctx, form)
	if err != nil {
		c.metrics.TranslateCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.TranslateCalls.WithLabelValues("success").Inc()
	return out, nil
}

// Headline returns the dashboard title in lang, falling back to English on
// any failure.
func (c *Client) Headline(ctx context.Context, lang string) string {
	if lang == "" || lang == "en" || !slices.Contains(Languages, lang) {
		return DefaultHeadline
	}
	out, err := c.Translate(ctx, []string{DefaultHeadline}, lang, "en")
	if err != nil || len(out) == 0 || out[0] == "" {
		if err != nil && !errors.Is(err, ErrMissingKey) {
			c.logger.Warn("headline translation failed", "lang", lang, "error", err)
		}
		return DefaultHeadline
	}
	return out[0]
}

func (c *Client) doRequest(ctx context.Context, form url.Values) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]string, 0, len(payload.Data.Translations))
	for _, t := range payload.Data.Translations {
		out = append(out, t.TranslatedText)
	}
	return out, nil
}

// Translation API response types.

type response struct {
	Data struct {
		Translations []translation `json:"translations"`
	} `json:"data"`
}

type translation struct {
	TranslatedText         string `json:"translatedText"`
	DetectedSourceLanguage string `json:"detectedSourceLanguage,omitempty"`
}
