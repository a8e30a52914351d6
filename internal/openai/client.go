package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultChatModel      = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-3-large"
	DefaultRequestTimeout = 120 * time.Second

	maxAttempts      = 4
	initialBackoff   = 2 * time.Second
	backoffMultiples = 2
)

// APIError is a non-2xx response from the completion or embedding endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("openai api status %d", e.StatusCode)
	}
	return fmt.Sprintf("openai api status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls an OpenAI-compatible API for chat completions and embeddings.
// Transient failures are retried with exponential backoff up to a fixed
// attempt ceiling, then surfaced to the caller.
type Client struct {
	completionsURL string
	embeddingsURL  string
	token          string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
	backoffBase    time.Duration
}

func NewClient(baseURL, token string) (*Client, error) {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = DefaultBaseURL
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return nil, fmt.Errorf("invalid OpenAI base URL %q", baseURL)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("OpenAI token is required")
	}

	base := strings.TrimRight(parsed.String(), "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}

	return &Client{
		completionsURL: base + "/chat/completions",
		embeddingsURL:  base + "/embeddings",
		token:          token,
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		backoffBase: initialBackoff,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete runs a chat completion with a system task and user input.
func (c *Client) Complete(ctx context.Context, task, input string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: task},
			{Role: "user", Content: input},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	respBody, err := c.postWithRetry(ctx, c.completionsURL, body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("completion response was empty")
	}
	return content, nil
}

// Embed returns the embedding vector for a single input text.
func (c *Client) Embed(ctx context.Context, input string) ([]float64, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	body, err := json.Marshal(embeddingRequest{
		Model: c.embeddingModel,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	respBody, err := c.postWithRetry(ctx, c.embeddingsURL, body)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response missing vector")
	}

	vector := parsed.Data[0].Embedding
	for i, value := range vector {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("embedding vector has non-finite value at index %d", i)
		}
	}
	return vector, nil
}

func (c *Client) postWithRetry(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	backoff := c.backoffBase
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		respBody, err := c.post(ctx, endpoint, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Transient() {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= backoffMultiples
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(respBody))
		var payload errorResponse
		if unmarshalErr := json.Unmarshal(respBody, &payload); unmarshalErr == nil {
			if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
				message = msg
			}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	return respBody, nil
}
