package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

//go:embed prompt/extract.md
var extractPromptRaw string

// extractFacts reduces one Q/A exchange to durable fact strings via a
// single model call. The request is size-bounded first; an oversized
// request that cannot be shrunk skips extraction without error.
func (a *Agent) extractFacts(ctx context.Context, req ExtractionRequest) ([]string, error) {
	fitted, ok := a.bounds.FitExtraction(req)
	if !ok {
		logging.From(ctx).Warn("extraction request over size ceiling, skipping",
			"ceiling", a.bounds.ExtractionCeiling)
		return nil, nil
	}

	input := "Input: " + fitted.Question
	if fitted.Response != "" {
		input += "\n" + fitted.Response
	}

	raw, err := a.llm.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: extractPromptRaw},
		{Role: model.RoleUser, Content: input},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "fact extraction call failed")
	}

	return parseFacts(raw)
}

// parseFacts decodes the extraction output. Models occasionally wrap the
// JSON in code fences despite instructions, so fences are stripped first.
func parseFacts(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var parsed struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to parse extraction output",
			goerr.V("output", raw))
	}

	var facts []string
	for _, f := range parsed.Facts {
		if strings.TrimSpace(f) != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}
