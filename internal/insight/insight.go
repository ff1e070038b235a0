// Package insight answers analyst questions about an ingested dataset.
//
// The only context the model sees is the stored dataset summary — the
// prompt never includes raw source data or connection credentials.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
)

// Answerer generates a natural-language answer about a dataset summary.
type Answerer interface {
	Answer(ctx context.Context, summary *domain.DatasetSummary, question string) (string, error)
}

const systemPrompt = `You are an assistant helping analysts interpret datasets fetched from public APIs.
Respond in Korean when the user writes in Korean, otherwise respond in English.
Base your answers only on the dataset summary provided. If information is missing,
explain what additional data would be needed.`

const (
	// DefaultBaseURL is the OpenAI API root. Any chat-completions
	// compatible endpoint works.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel balances cost against answer quality.
	DefaultModel = "gpt-4.1-mini"

	requestTimeout = 60 * time.Second
)

// Config holds the settings for the chat-completions backend.
type Config struct {
	// BaseURL is the API root, without the /chat/completions suffix.
	BaseURL string

	// Model is the model name sent with every request.
	Model string

	// APIKey authenticates against the endpoint. Empty disables the
	// Q&A feature entirely.
	APIKey string
}

// Enabled reports whether the Q&A backend is configured at all.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Client is an Answerer backed by an OpenAI-compatible chat-completions
// endpoint.
type Client struct {
	cfg    Config
	client *http.Client
}

var _ Answerer = (*Client)(nil)

// NewClient builds a Client, filling in defaults for base URL and model.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{cfg: cfg, client: httpClient}
}

// --- wire types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer builds the dataset prompt and asks the configured model.
// A connection that has never completed an ingestion run has no summary,
// which is a caller error, not a backend failure.
func (c *Client) Answer(ctx context.Context, summary *domain.DatasetSummary, question string) (string, error) {
	if summary == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "no ingestion summary available, run data ingestion first")
	}
	if strings.TrimSpace(question) == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "question must not be empty")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(summary, question)},
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindUnknown, "encoding chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTransport, "calling chat completions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errs.Status(resp.StatusCode,
			fmt.Sprintf("chat completions returned %s", resp.Status))
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", errs.Wrap(errs.ErrKindTransport, "decoding chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.ErrKindTransport, "chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
