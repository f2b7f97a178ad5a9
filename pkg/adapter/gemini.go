package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"google.golang.org/genai"
)

// GeminiClient implements LLM on top of the Gemini API (Vertex AI backend).
type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(m string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = m
	}
}

func WithGeminiEmbeddingModel(m string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = m
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding returned", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}

func (g *GeminiClient) Chat(ctx context.Context, messages []model.Message) (string, error) {
	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(msg.Content, "")
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	if sb.Len() == 0 {
		return "", goerr.New("empty response generated")
	}

	return sb.String(), nil
}
