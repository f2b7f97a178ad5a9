package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/service/toolproc"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
)

type mockLLM struct {
	embed func(text string) ([]float32, error)
	chat  func(messages []model.Message) (string, error)

	chatCalls []([]model.Message)
}

func (m *mockLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embed != nil {
		return m.embed(text)
	}
	return fakeEmbedding(text), nil
}

func (m *mockLLM) Chat(ctx context.Context, messages []model.Message) (string, error) {
	m.chatCalls = append(m.chatCalls, messages)
	if m.chat != nil {
		return m.chat(messages)
	}
	return scriptedChat(messages)
}

// generationCalls counts chat calls that went through the normal
// generation path rather than extraction or summarization.
func (m *mockLLM) generationCalls() int {
	n := 0
	for _, messages := range m.chatCalls {
		if strings.Contains(messages[0].Content, "memory of past conversations") {
			n++
		}
	}
	return n
}

func fakeEmbedding(text string) []float32 {
	vec := make([]float32, model.VectorDimension)
	for i, b := range []byte(text) {
		vec[i%model.VectorDimension] += float32(b)
	}
	vec[0]++
	return vec
}

func scriptedChat(messages []model.Message) (string, error) {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "memory-extraction"):
		return `{"facts": []}`, nil
	case strings.Contains(system, "summarization assistant"):
		return "A summary.", nil
	default:
		return "generated response", nil
	}
}

type mockTool struct {
	calls   int
	outcome *model.ToolOutcome
	err     error
}

func (m *mockTool) Call(ctx context.Context, inv toolproc.Invocation) (*model.ToolOutcome, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

// failingRepo wraps an in-process store and fails the selected
// operations.
type failingRepo struct {
	inner      *repository.ChromemRepo
	failEnsure bool
	failSearch bool
	failUpsert bool
}

func (f *failingRepo) EnsureCollection(ctx context.Context) error {
	if f.failEnsure {
		return goerr.New("store unavailable")
	}
	return f.inner.EnsureCollection(ctx)
}

func (f *failingRepo) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	if f.failUpsert {
		return goerr.New("write rejected")
	}
	return f.inner.Upsert(ctx, record)
}

func (f *failingRepo) Search(ctx context.Context, vector []float32, filter model.SearchFilter, limit int) ([]*model.MemoryRecord, error) {
	if f.failSearch {
		return nil, goerr.New("search unavailable")
	}
	return f.inner.Search(ctx, vector, filter, limit)
}

func (f *failingRepo) Scroll(ctx context.Context, filter model.SearchFilter) ([]*model.MemoryRecord, error) {
	return f.inner.Scroll(ctx, filter)
}

func newFailingAgent(t *testing.T, llm *mockLLM, repo *failingRepo) *chat.Agent {
	t.Helper()

	inner, err := repository.NewChromem("test-app")
	gt.NoError(t, err)
	repo.inner = inner

	agent, err := chat.New(chat.NewInput{
		LLM:   llm,
		Repo:  repo,
		Tools: &mockTool{},
		AppID: "test-app",
	})
	gt.NoError(t, err)
	return agent
}

func newTestAgent(t *testing.T, llm *mockLLM, tools chat.ToolCaller) (*chat.Agent, *repository.ChromemRepo) {
	t.Helper()

	repo, err := repository.NewChromem("test-app")
	gt.NoError(t, err)
	agent, err := chat.New(chat.NewInput{
		LLM:        llm,
		Repo:       repo,
		Tools:      tools,
		ToolConfig: toolproc.DefaultConfig("tavily-key", "firecrawl-key"),
		AppID:      "test-app",
	})
	gt.NoError(t, err)

	return agent, repo
}

func TestAskGeneratesAndPersists(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "hello",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, out.Response, "generated response")

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].Question, "hello")
	gt.Equal(t, records[0].Response, "generated response")
	gt.Equal(t, records[0].UserID, model.UserID("user-1"))
}

func TestAskUsesMemoryContext(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	gt.NoError(t, repo.EnsureCollection(ctx))
	gt.NoError(t, repo.Upsert(ctx, &model.MemoryRecord{
		ID:             1,
		Vector:         fakeEmbedding("my name"),
		Question:       "my name is Kevin",
		Response:       "Nice to meet you, Kevin!",
		UserID:         "user-1",
		AppID:          "test-app",
		ExtractedFacts: "User name: Kevin",
	}))

	_, err := agent.Ask(ctx, chat.AskInput{
		Question: "do you remember my name?",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, llm.generationCalls(), 1)
	system := llm.chatCalls[0][0].Content
	gt.S(t, system).Contains("User Context:")
	gt.S(t, system).Contains("User name: Kevin")
	gt.S(t, system).Contains("Conversation History:")
	gt.S(t, system).Contains("my name is Kevin")
}

func TestAskSearchAnswerIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	tools := &mockTool{outcome: model.ToolSuccess("Go 1.25 was released with new GC tuning.")}
	agent, _ := newTestAgent(t, llm, tools)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "what's the latest Go news",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, out.Response, "Go 1.25 was released with new GC tuning.")
	gt.Equal(t, tools.calls, 1)
	// Authoritative answers skip generation entirely
	gt.Equal(t, llm.generationCalls(), 0)
}

func TestAskMalformedSearchAnswerFallsBack(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	tools := &mockTool{outcome: model.ToolSuccess(`{"broken json`)}
	agent, _ := newTestAgent(t, llm, tools)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "latest rust news",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, out.Response, "generated response")
	gt.Equal(t, llm.generationCalls(), 1)
}

func TestAskToolFailureDegrades(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	tools := &mockTool{outcome: model.ToolTimeout()}
	agent, repo := newTestAgent(t, llm, tools)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "latest AI news",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	// The turn still completes with a non-empty apologetic response
	gt.S(t, out.Response).Contains("Sorry")
	gt.Equal(t, llm.generationCalls(), 0)

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
}

func TestAskToolInvokedAtMostOnce(t *testing.T) {
	ctx := context.Background()
	tools := &mockTool{outcome: model.ToolSuccess("answer")}
	agent, _ := newTestAgent(t, &mockLLM{}, tools)

	_, err := agent.Ask(ctx, chat.AskInput{
		Question: "latest news about Go",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, tools.calls, 1)
}

func TestAskScrapeVerbatim(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	tools := &mockTool{outcome: model.ToolSuccess("# Page Title\n\nSome article text.")}
	agent, _ := newTestAgent(t, llm, tools)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "check https://example.com/article",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, out.Response, "# Page Title\n\nSome article text.")
	gt.Equal(t, llm.generationCalls(), 0)
}

func TestAskScrapeSummarize(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	tools := &mockTool{outcome: model.ToolSuccess("Content scraped from https://example.com/post:\n\nlong article body")}
	agent, _ := newTestAgent(t, llm, tools)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "summarize https://example.com/post",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	gt.Equal(t, out.Response, "A summary.")

	// The summarization call receives the scraped body without the
	// scrape preamble.
	found := false
	for _, messages := range llm.chatCalls {
		if strings.Contains(messages[0].Content, "summarization assistant") {
			found = true
			gt.S(t, messages[1].Content).Contains("long article body")
			gt.S(t, messages[1].Content).NotContains("Content scraped from")
		}
	}
	gt.True(t, found)
}

func TestAskEmbedFailureAborts(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{
		embed: func(text string) ([]float32, error) {
			return nil, goerr.New("embedding backend down")
		},
	}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	_, err := agent.Ask(ctx, chat.AskInput{Question: "hello", UserID: "user-1"})
	gt.Error(t, err)

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(0)
}

func TestAskGenerateFailureAborts(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{
		chat: func(messages []model.Message) (string, error) {
			return "", goerr.New("model unavailable")
		},
	}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	_, err := agent.Ask(ctx, chat.AskInput{Question: "hello", UserID: "user-1"})
	gt.Error(t, err)

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(0)
}

func TestAskRecallFailureDegrades(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	repo := &failingRepo{failSearch: true}
	agent := newFailingAgent(t, llm, repo)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "hello",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	// The turn proceeds with an empty memory set
	gt.Equal(t, out.Response, "generated response")
	gt.Equal(t, llm.generationCalls(), 1)
	gt.S(t, llm.chatCalls[0][0].Content).NotContains("User Context:")

	// The exchange is still persisted
	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
}

func TestAskStoreUnavailableDegrades(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	agent := newFailingAgent(t, llm, &failingRepo{failEnsure: true})

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "hello",
		UserID:   "user-1",
	})
	gt.NoError(t, err)
	gt.Equal(t, out.Response, "generated response")
}

func TestAskPersistFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	repo := &failingRepo{failUpsert: true}
	agent := newFailingAgent(t, llm, repo)

	out, err := agent.Ask(ctx, chat.AskInput{
		Question: "hello",
		UserID:   "user-1",
	})
	gt.NoError(t, err)
	gt.Equal(t, out.Response, "generated response")

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(0)
}

func TestNewRejectsZeroExtractionChunk(t *testing.T) {
	repo, err := repository.NewChromem("test-app")
	gt.NoError(t, err)

	bounds := chat.DefaultBounds()
	bounds.ExtractionChunk = 0

	_, err = chat.New(chat.NewInput{
		LLM:   &mockLLM{},
		Repo:  repo,
		AppID: "test-app",
	}, chat.WithBounds(bounds))
	gt.Error(t, err)
}

func TestAskExtractedFactsPersisted(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{
		chat: func(messages []model.Message) (string, error) {
			if strings.Contains(messages[0].Content, "memory-extraction") {
				return "```json\n{\"facts\": [\"User name: Kevin\", \"Location: Kyiv\"]}\n```", nil
			}
			return scriptedChat(messages)
		},
	}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	_, err := agent.Ask(ctx, chat.AskInput{
		Question: "I'm Kevin from Kyiv",
		UserID:   "user-1",
	})
	gt.NoError(t, err)

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].ExtractedFacts, "User name: Kevin\nLocation: Kyiv")
}

func TestSearchMemory(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	gt.NoError(t, repo.EnsureCollection(ctx))
	gt.NoError(t, repo.Upsert(ctx, &model.MemoryRecord{
		ID:       1,
		Vector:   fakeEmbedding("favorite food is ramen"),
		Question: "my favorite food is ramen",
		Response: "Noted!",
		UserID:   "user-1",
		AppID:    "test-app",
	}))

	records, err := agent.SearchMemory(ctx, chat.SearchInput{
		Query:  "favorite food",
		UserID: "user-1",
	})
	gt.NoError(t, err)

	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].Question, "my favorite food is ramen")
}

func TestRecordExchangePreservesFullResponse(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{}
	agent, repo := newTestAgent(t, llm, &mockTool{})

	long := strings.Repeat("x", 9000)
	agent.RecordExchange(ctx, chat.RecordInput{
		Question:             "voice question",
		Response:             long,
		UserID:               "user-1",
		PreserveFullResponse: true,
	})

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, len(records[0].Response), 9000)
}

func TestRecordExchangeTruncatesByDefault(t *testing.T) {
	ctx := context.Background()
	agent, repo := newTestAgent(t, &mockLLM{}, &mockTool{})

	agent.RecordExchange(ctx, chat.RecordInput{
		Question: "voice question",
		Response: strings.Repeat("x", 9000),
		UserID:   "user-1",
	})

	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: "test-app"})
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, len(records[0].Response), 8000)
	gt.S(t, records[0].Response).Contains(chat.TruncationMarker)
}
