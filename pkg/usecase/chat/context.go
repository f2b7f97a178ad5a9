package chat

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"regexp"
	"strings"
	"text/template"

	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

//go:embed prompt/memory_context.md
var memoryContextPromptRaw string

var memoryContextPromptTmpl = template.Must(template.New("memory_context").Parse(memoryContextPromptRaw))

//go:embed prompt/summarize.md
var summarizePromptRaw string

// summarizeExcerptLimit caps how much scraped content goes into a
// one-shot summarization call.
const summarizeExcerptLimit = 10000

var scrapePreamblePattern = regexp.MustCompile(`Content scraped from https?://\S+:\s*\n+`)

func renderMemoryContextPrompt(contextText string) string {
	var buf bytes.Buffer
	if err := memoryContextPromptTmpl.Execute(&buf, map[string]string{"Context": contextText}); err != nil {
		return memoryContextPromptRaw
	}
	return buf.String()
}

// buildContext turns the recall set and the optional tool outcome into
// either a final response or context for generation. Precedence: search
// answer verbatim, scraped content summarized on request, scraped content
// verbatim, then memory context.
func (a *Agent) buildContext(ctx context.Context, state *pipelineState) {
	if state.outcome != nil {
		switch state.outcome.Kind {
		case model.ToolOutcomeSuccess:
			if a.consumeToolOutput(ctx, state) {
				return
			}
		case model.ToolOutcomeError, model.ToolOutcomeTimeout:
			state.response = toolFailureResponse(state.decision)
			return
		}
	}

	state.context = memoryContext(state.memories)
}

// consumeToolOutput applies the tool-specific precedence rules. A false
// return means the output produced nothing usable and the turn falls back
// to memory context.
func (a *Agent) consumeToolOutput(ctx context.Context, state *pipelineState) bool {
	content := state.outcome.Content

	switch state.decision.Kind {
	case tool.KindSearch:
		answer := searchAnswer(content)
		if answer == "" {
			logging.From(ctx).Warn("search returned no usable answer, falling back to memory context")
			return false
		}
		state.response = answer
		state.messages = append(state.messages, model.Message{
			Role:    model.RoleAssistant,
			Content: answer,
		})
		return true

	case tool.KindScrape:
		if strings.Contains(content, "Error:") {
			state.response = scrapeFailureResponse
			return true
		}

		if strings.Contains(strings.ToLower(state.question), "summarize") {
			state.response = a.summarize(ctx, content)
		} else {
			state.response = content
		}
		state.messages = append(state.messages, model.Message{
			Role:    model.RoleAssistant,
			Content: state.response,
		})
		return true
	}

	return false
}

// searchAnswer extracts the authoritative answer from search tool output.
// Output that looks like JSON must parse and carry a content field;
// malformed payloads yield no answer rather than an error.
func searchAnswer(content string) string {
	s := strings.TrimSpace(content)
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var wrapper struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
			return ""
		}
		return strings.TrimSpace(wrapper.Content)
	}

	return s
}

// summarize runs a one-shot summarization call over a capped excerpt of
// the scraped content. Failure degrades to an apology, not an abort.
func (a *Agent) summarize(ctx context.Context, content string) string {
	excerpt := scrapePreamblePattern.ReplaceAllString(content, "")
	if len(excerpt) > summarizeExcerptLimit {
		excerpt = excerpt[:summarizeExcerptLimit]
	}

	prompt := "Please provide a comprehensive summary of the following content. " +
		"Focus on the main points, key features, updates, and important information:\n\n" + excerpt

	summary, err := a.llm.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: summarizePromptRaw},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		logging.From(ctx).Warn("summarization failed", "error", err)
		return "Sorry, I encountered an error while trying to summarize that website. " +
			"Please try again later or provide a different URL."
	}

	return summary
}

// memoryContext assembles the generation context from recalled records:
// extracted facts under one heading, prior exchanges under another.
func memoryContext(memories []*model.MemoryRecord) string {
	var facts, history []string
	for _, m := range memories {
		if m.ExtractedFacts != "" {
			facts = append(facts, m.ExtractedFacts)
		}
		if summary := m.Summary(); strings.TrimSpace(summary) != "" {
			history = append(history, summary)
		}
	}

	var parts []string
	if len(facts) > 0 {
		parts = append(parts, "User Context:\n"+strings.Join(facts, "\n"))
	}
	if len(history) > 0 {
		parts = append(parts, "Conversation History:\n"+strings.Join(history, "\n\n"))
	}

	return strings.Join(parts, "\n\n")
}

func toolFailureResponse(decision *tool.Decision) string {
	if decision != nil && decision.Kind == tool.KindScrape {
		return scrapeFailureResponse
	}
	return searchFailureResponse
}
