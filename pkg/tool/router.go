// Package tool decides whether a question needs an external tool and, if
// so, which one. Routing is a pure function of the question text so the
// same question always produces the same decision.
package tool

import (
	"regexp"
	"strings"
)

// Kind distinguishes how a tool's output is consumed downstream: search
// results are a direct answer, scraped pages are raw material.
type Kind string

const (
	KindSearch Kind = "search"
	KindScrape Kind = "scrape"
)

// Decision names the tool server to call, the tool within it, and its
// arguments. Acknowledgement is the synthetic message appended to the
// turn's log when the decision is taken.
type Decision struct {
	Kind            Kind
	Server          string
	Tool            string
	Arguments       map[string]any
	Acknowledgement string
}

// NoToolAcknowledgement is appended to the message log when routing
// selects no tool.
const NoToolAcknowledgement = "Let me check what I know about that."

var urlPattern = regexp.MustCompile(`https?://\S+`)

var newsTriggers = []string{"news", "latest", "recent"}

// newsTopics widen the freshness window choice: a query mentioning any of
// these gets a one-week window instead of the one-month default.
var newsTopics = []string{
	"news",
	"latest",
	"recent",
	"updates",
	"announcement",
	"release",
	"flutter",
	"tech",
	"programming",
	"development",
	"software",
	"ai",
	"machine learning",
}

// queryPrefixes are conversational lead-ins stripped from search queries.
// Longer prefixes come first so "latest news about x" does not leave
// "news about " behind.
var queryPrefixes = []string{
	"what are the latest news about ",
	"latest news about ",
	"news about ",
	"what is ",
	"tell me about ",
}

// Route maps a question to at most one tool invocation. First match wins:
// a URL selects the scrape tool, a news trigger word selects the search
// tool, anything else selects no tool (nil).
func Route(question string) *Decision {
	if url := urlPattern.FindString(question); url != "" {
		return &Decision{
			Kind:   KindScrape,
			Server: "firecrawl",
			Tool:   "firecrawl_scrape",
			Arguments: map[string]any{
				"url":             url,
				"formats":         []string{"markdown"},
				"onlyMainContent": true,
			},
			Acknowledgement: "I'll scrape the content from that URL.",
		}
	}

	lower := strings.ToLower(question)
	for _, trigger := range newsTriggers {
		if strings.Contains(lower, trigger) {
			return &Decision{
				Kind:   KindSearch,
				Server: "tavily",
				Tool:   "tavily-search",
				Arguments: map[string]any{
					"query":               optimizeQuery(question),
					"search_depth":        "basic",
					"include_answer":      true,
					"include_raw_content": false,
					"include_images":      false,
					"max_results":         3,
					"time_range":          freshnessWindow(question),
				},
				Acknowledgement: "I'll search for recent information about that.",
			}
		}
	}

	return nil
}

// optimizeQuery strips conversational prefixes that dilute search
// relevance and appends a freshness hint for recognized topics.
func optimizeQuery(question string) string {
	cleaned := strings.TrimSpace(question)
	for _, prefix := range queryPrefixes {
		if len(cleaned) > len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}

	if strings.Contains(strings.ToLower(cleaned), "flutter") {
		return cleaned + " news updates"
	}

	return cleaned
}

func freshnessWindow(question string) string {
	lower := strings.ToLower(question)
	for _, topic := range newsTopics {
		if strings.Contains(lower, topic) {
			return "week"
		}
	}
	return "month"
}
