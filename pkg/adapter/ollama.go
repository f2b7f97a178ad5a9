package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// OllamaClient talks to an Ollama-compatible model server over its REST API.
type OllamaClient struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
}

type OllamaOption func(*OllamaClient)

func WithChatModel(m string) OllamaOption {
	return func(c *OllamaClient) {
		c.chatModel = m
	}
}

func WithEmbeddingModel(m string) OllamaOption {
	return func(c *OllamaClient) {
		c.embeddingModel = m
	}
}

func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = hc
	}
}

// NewOllama creates a new Ollama client.
func NewOllama(baseURL string, opts ...OllamaOption) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, goerr.New("ollama base URL is required")
	}

	c := &OllamaClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		chatModel:      "llama3.1",
		embeddingModel: "nomic-embed-text",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbeddingResponse
	req := ollamaEmbeddingRequest{Model: c.embeddingModel, Prompt: text}
	if err := c.post(ctx, "/api/embeddings", req, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to get embeddings")
	}

	if len(resp.Embedding) == 0 {
		return nil, goerr.New("empty embedding returned", goerr.V("model", c.embeddingModel))
	}

	return resp.Embedding, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message model.Message `json:"message"`
}

func (c *OllamaClient) Chat(ctx context.Context, messages []model.Message) (string, error) {
	var resp ollamaChatResponse
	req := ollamaChatRequest{Model: c.chatModel, Messages: messages, Stream: false}
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", goerr.Wrap(err, "failed to get chat response")
	}

	return resp.Message.Content, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request", goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return goerr.New("model server returned error",
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}

	return nil
}
