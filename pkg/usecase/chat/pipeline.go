package chat

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/service/toolproc"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// pipelineState threads one turn through the stages. Each stage reads the
// fields earlier stages filled in and adds its own.
type pipelineState struct {
	question string
	userID   model.UserID
	chatID   model.ChatID
	chatName string

	embedding []float32
	memories  []*model.MemoryRecord
	decision  *tool.Decision
	outcome   *model.ToolOutcome
	messages  []model.Message
	context   string
	response  string
}

const (
	scrapeFailureResponse = "Sorry, I encountered an error while trying to scrape that website. " +
		"Please try again later or provide a different URL."
	searchFailureResponse = "Sorry, I encountered an error while searching for that information. " +
		"Please try again later."
)

// run drives the stages strictly in order. Embed and Generate failures
// abort the turn; Recall and Tool failures degrade; Persist failures are
// swallowed.
func (a *Agent) run(ctx context.Context, input AskInput) (*pipelineState, error) {
	state := &pipelineState{
		question: input.Question,
		userID:   input.UserID,
		chatID:   input.ChatID,
		chatName: input.ChatName,
	}

	if err := a.embed(ctx, state); err != nil {
		return nil, err
	}

	a.recall(ctx, state)
	a.route(state)
	a.invokeTool(ctx, state)
	a.buildContext(ctx, state)

	if err := a.generate(ctx, state); err != nil {
		return nil, err
	}

	a.persist(ctx, persistInput{
		Question: state.question,
		Response: state.response,
		UserID:   state.userID,
		ChatID:   state.chatID,
		ChatName: state.chatName,
	})

	return state, nil
}

func (a *Agent) embed(ctx context.Context, state *pipelineState) error {
	vec, err := a.llm.Embed(ctx, state.question)
	if err != nil {
		return goerr.Wrap(err, "failed to embed question")
	}

	state.embedding = adapter.PadEmbedding(vec, a.dimension)
	return nil
}

// recall retrieves prior memories. Failure degrades the turn to an empty
// recall set instead of aborting.
func (a *Agent) recall(ctx context.Context, state *pipelineState) {
	logger := logging.From(ctx)

	if err := a.repo.EnsureCollection(ctx); err != nil {
		logger.Warn("memory store unavailable, continuing without recall", "error", err)
		return
	}

	filter := model.SearchFilter{
		AppID:  a.appID,
		UserID: state.userID,
		ChatID: state.chatID,
	}

	memories, err := a.repo.Search(ctx, state.embedding, filter, a.searchLimit)
	if err != nil {
		logger.Warn("memory search failed, continuing without recall", "error", err)
		return
	}

	state.memories = memories
}

// route takes the tool decision and appends the turn's acknowledgement as
// the first message-log entry.
func (a *Agent) route(state *pipelineState) {
	state.decision = tool.Route(state.question)

	ack := tool.NoToolAcknowledgement
	if state.decision != nil {
		ack = state.decision.Acknowledgement
	}
	state.messages = append(state.messages, model.Message{
		Role:    model.RoleAssistant,
		Content: ack,
	})
}

// invokeTool executes at most one tool call per turn: only when routing
// selected a tool and the message log holds exactly the acknowledgement.
func (a *Agent) invokeTool(ctx context.Context, state *pipelineState) {
	if state.decision == nil || len(state.messages) != 1 {
		return
	}

	logger := logging.From(ctx)

	if a.tools == nil || a.toolCfg == nil {
		logger.Warn("tool selected but no tool client configured", "tool", state.decision.Tool)
		state.outcome = model.ToolError("tool client not configured")
		return
	}

	server := a.toolCfg.Find(state.decision.Server)
	if server == nil {
		logger.Warn("tool server not defined", "server", state.decision.Server)
		state.outcome = model.ToolError("tool server not defined: " + state.decision.Server)
		return
	}

	outcome, err := a.tools.Call(ctx, toolproc.Invocation{
		Server:    *server,
		Tool:      state.decision.Tool,
		Arguments: state.decision.Arguments,
	})
	if err != nil {
		logger.Warn("tool invocation rejected", "tool", state.decision.Tool, "error", err)
		state.outcome = model.ToolError(err.Error())
		return
	}

	state.outcome = outcome
}

// generate produces the response when no earlier stage already did. One
// model call, no retries; failure aborts the turn.
func (a *Agent) generate(ctx context.Context, state *pipelineState) error {
	if state.response != "" {
		return nil
	}

	system := renderMemoryContextPrompt(state.context)
	messages := []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: state.question},
	}

	response, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return goerr.Wrap(err, "failed to generate response")
	}

	state.messages = append(state.messages,
		model.Message{Role: model.RoleUser, Content: state.question},
		model.Message{Role: model.RoleAssistant, Content: response},
	)
	state.response = response
	return nil
}
