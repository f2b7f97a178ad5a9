package chat

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// persistInput describes one finished exchange to store.
type persistInput struct {
	Question string
	Response string
	UserID   model.UserID
	ChatID   model.ChatID
	ChatName string

	// PreserveFullResponse skips response truncation. Voice turns use
	// this so playback history keeps the full message.
	PreserveFullResponse bool
}

// RecordInput mirrors persistInput for external callers.
type RecordInput struct {
	Question string
	Response string
	UserID   model.UserID
	ChatID   model.ChatID
	ChatName string

	PreserveFullResponse bool
}

// RecordExchange stores an exchange that was produced outside the Ask
// pipeline, such as a voice turn. Persistence failures are logged and
// swallowed the same way the pipeline swallows them.
func (a *Agent) RecordExchange(ctx context.Context, input RecordInput) {
	a.persist(ctx, persistInput(input))
}

// persist extracts facts from the exchange, sanitizes the payload and
// writes one immutable memory record. Nothing here can fail the turn:
// every error is logged and dropped.
func (a *Agent) persist(ctx context.Context, input persistInput) {
	logger := logging.From(ctx)

	if input.Response == "" {
		logger.Debug("no response to store, skipping persistence")
		return
	}

	facts, err := a.extractFacts(ctx, ExtractionRequest{
		Question: input.Question,
		Response: input.Response,
		UserID:   string(input.UserID),
		ChatID:   string(input.ChatID),
	})
	if err != nil {
		logger.Warn("fact extraction failed, storing exchange without facts", "error", err)
	}

	response := input.Response
	if !input.PreserveFullResponse {
		response = Truncate(response, a.bounds.ResponseLimit)
	}

	record := &model.MemoryRecord{
		ID:             time.Now().Unix(),
		Question:       input.Question,
		Response:       response,
		UserID:         input.UserID,
		AppID:          a.appID,
		Timestamp:      time.Now().UTC(),
		ExtractedFacts: Truncate(strings.Join(facts, "\n"), a.bounds.FactsLimit),
		ChatID:         input.ChatID,
		ChatName:       input.ChatName,
	}

	vec, err := a.llm.Embed(ctx, input.Question+" "+input.Response)
	if err != nil {
		logger.Warn("failed to embed exchange, memory not stored", "error", err)
		return
	}
	record.Vector = adapter.PadEmbedding(vec, a.dimension)

	if err := a.repo.EnsureCollection(ctx); err != nil {
		logger.Warn("memory store unavailable, memory not stored", "error", err)
		return
	}

	if err := a.repo.Upsert(ctx, record); err != nil {
		logger.Warn("failed to store memory record", "error", err)
		return
	}

	logger.Debug("stored memory record", "id", record.ID, "user_id", record.UserID)
}
