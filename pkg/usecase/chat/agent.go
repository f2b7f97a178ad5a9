// Package chat runs the memory-augmented conversation pipeline: embed the
// question, recall prior exchanges, optionally call an external tool,
// build context, generate a response and persist the exchange as a new
// memory record.
package chat

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/service/toolproc"
)

// ToolCaller performs one external tool invocation. *toolproc.Client
// satisfies this; tests substitute their own.
type ToolCaller interface {
	Call(ctx context.Context, inv toolproc.Invocation) (*model.ToolOutcome, error)
}

// Agent is the pipeline service. Construct one at process start and share
// it across requests; it holds no per-request state.
type Agent struct {
	llm     adapter.LLM
	repo    repository.Repository
	tools   ToolCaller
	toolCfg *toolproc.Config

	appID       string
	dimension   int
	searchLimit int
	bounds      Bounds
}

// NewInput contains the collaborators for an Agent.
type NewInput struct {
	LLM        adapter.LLM
	Repo       repository.Repository
	Tools      ToolCaller
	ToolConfig *toolproc.Config
	AppID      string
}

type Option func(*Agent)

// WithDimension overrides the deployment embedding dimension.
func WithDimension(dim int) Option {
	return func(a *Agent) {
		a.dimension = dim
	}
}

// WithSearchLimit overrides how many records recall retrieves.
func WithSearchLimit(limit int) Option {
	return func(a *Agent) {
		a.searchLimit = limit
	}
}

// WithBounds overrides the payload sanitizer bounds.
func WithBounds(b Bounds) Option {
	return func(a *Agent) {
		a.bounds = b
	}
}

func New(input NewInput, opts ...Option) (*Agent, error) {
	if input.LLM == nil {
		return nil, goerr.New("llm client is required")
	}
	if input.Repo == nil {
		return nil, goerr.New("repository is required")
	}
	if input.AppID == "" {
		return nil, goerr.New("application id is required")
	}

	a := &Agent{
		llm:     input.LLM,
		repo:    input.Repo,
		tools:   input.Tools,
		toolCfg: input.ToolConfig,

		appID:       input.AppID,
		dimension:   model.VectorDimension,
		searchLimit: 5,
		bounds:      DefaultBounds(),
	}

	for _, opt := range opts {
		opt(a)
	}

	// A non-positive chunk would keep FitExtraction from ever shrinking
	// the payload.
	if a.bounds.ExtractionChunk <= 0 {
		return nil, goerr.New("extraction chunk must be positive",
			goerr.V("chunk", a.bounds.ExtractionChunk))
	}

	return a, nil
}

// AskInput is one conversational turn from a caller.
type AskInput struct {
	Question string
	UserID   model.UserID
	ChatID   model.ChatID
	ChatName string
}

// AskOutput carries the final response text.
type AskOutput struct {
	Response string
}

// Ask runs the full pipeline for one turn.
func (a *Agent) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	if input.Question == "" {
		return nil, goerr.New("question is required")
	}

	state, err := a.run(ctx, input)
	if err != nil {
		return nil, err
	}

	return &AskOutput{Response: state.response}, nil
}

// SearchInput scopes a direct memory search.
type SearchInput struct {
	Query  string
	UserID model.UserID
	ChatID model.ChatID
}

// SearchMemory embeds the query and returns the closest memory records,
// scoped to this deployment and optionally to a user and chat.
func (a *Agent) SearchMemory(ctx context.Context, input SearchInput) ([]*model.MemoryRecord, error) {
	if input.Query == "" {
		return nil, goerr.New("query is required")
	}

	vec, err := a.llm.Embed(ctx, input.Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	vec = adapter.PadEmbedding(vec, a.dimension)

	if err := a.repo.EnsureCollection(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to prepare memory store")
	}

	filter := model.SearchFilter{
		AppID:  a.appID,
		UserID: input.UserID,
		ChatID: input.ChatID,
	}

	records, err := a.repo.Search(ctx, vec, filter, a.searchLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories")
	}

	return records, nil
}
