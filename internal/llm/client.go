// Package llm is the language-model RPC client. The wire contract is the
// Ollama-native chat API; the core only cares about the text in
// message.content. Two model endpoints are addressed by name: a strong
// model for strategic planning and a fast model for everything else.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single generation.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
	Think    bool      `json:"think"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// Config selects the endpoint and the two model names.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	StrongModel string        `yaml:"strong_model"`
	FastModel   string        `yaml:"fast_model"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Client calls the model endpoint. Safe for concurrent use.
type Client struct {
	baseURL string
	strong  string
	fast    string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	return &Client{
		baseURL: base,
		strong:  cfg.StrongModel,
		fast:    cfg.FastModel,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// StrongModel returns the configured strategic model name.
func (c *Client) StrongModel() string { return c.strong }

// FastModel returns the configured reactive model name.
func (c *Client) FastModel() string { return c.fast }

// Chat sends one request and returns the reply text. Errors (including
// timeouts) are returned to the caller, which degrades to a safe idle
// decision; a model failure is never fatal.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Options:  opts,
		Think:    false,
		Stream:   false,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat rpc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("chat rpc: %s", out.Error)
	}

	c.logger.Debug("llm call completed",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_len", len(out.Message.Content),
	)
	return out.Message.Content, nil
}
