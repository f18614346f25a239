package nl2sql

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

const (
	defaultModel       = "gpt-5"
	defaultCallTimeout = 15 * time.Second
	maxErrorBody       = 512
)

// Completer is the transport to the external translation model. Phase
// prompts, correction prompts and response parsing live above it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient speaks the chat completions protocol. Any compatible gateway
// works as BaseURL.
type OpenAIClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
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
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	switch {
	case baseURL == "":
		return nil, errors.New("base URL is required")
	case apiKey == "":
		return nil, errors.New("api key is required")
	}
	client := &OpenAIClient{
		endpoint:    baseURL + "/v1/chat/completions",
		apiKey:      apiKey,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
	if client.model == "" {
		client.model = defaultModel
	}
	if client.http.Timeout <= 0 {
		client.http.Timeout = defaultCallTimeout
	}
	return client, nil
}

func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends one system and one user message and returns the first
// choice with any markdown fence removed.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}

	var decoded chatResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			return "", fmt.Errorf("chat completion failed status=%d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncate(string(raw), maxErrorBody))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode chat completion response: %w", decodeErr)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("empty chat completion choices")
	}
	content := stripMarkdownFence(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("model returned empty content")
	}
	return content, nil
}

// stripMarkdownFence unwraps a ```lang ... ``` block. Text without a fence is
// returned trimmed.
func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && !strings.ContainsAny(body[:newline], " \t{[") {
		body = body[newline+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
