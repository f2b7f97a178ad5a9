package toolproc

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// rpcEnvelope is a validated JSON-RPC 2.0 response line.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// parseEnvelope validates one output line as a JSON-RPC 2.0 envelope.
// Anything else (log noise, partial JSON, other protocols) returns false
// and is ignored by the caller, never treated as a protocol violation.
func parseEnvelope(line string) (*rpcEnvelope, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}

	var env rpcEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, false
	}
	if env.JSONRPC != "2.0" {
		return nil, false
	}

	return &env, true
}

var readyWords = []string{"ready", "listening", "started"}

// looksReady is the heuristic fallback for tool servers that announce
// readiness with a log line instead of answering tools/list.
func looksReady(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range readyWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// callResult is the payload of a tools/call response.
type callResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError"`
	Error   json.RawMessage `json:"error"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractContent pulls the text out of a tools/call result. Content may be
// a plain string or an array of strings and {type:"text", text} objects;
// array items are newline-joined.
func extractContent(result json.RawMessage) (string, error) {
	var res callResult
	if err := json.Unmarshal(result, &res); err != nil {
		return "", goerr.Wrap(err, "malformed tool result")
	}

	if res.IsError || len(res.Error) > 0 {
		detail := string(res.Error)
		if detail == "" {
			detail = string(res.Content)
		}
		return "", goerr.New("tool reported error", goerr.V("detail", detail))
	}

	if len(res.Content) == 0 {
		return "", goerr.New("tool result has no content")
	}

	var s string
	if err := json.Unmarshal(res.Content, &s); err == nil {
		return normalizeContent(s), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(res.Content, &items); err != nil {
		return "", goerr.New("unsupported tool content shape", goerr.V("content", string(res.Content)))
	}

	parts := make([]string, 0, len(items))
	for _, raw := range items {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			parts = append(parts, str)
			continue
		}

		var item contentItem
		if err := json.Unmarshal(raw, &item); err == nil && item.Type == "text" {
			parts = append(parts, item.Text)
			continue
		}

		parts = append(parts, string(raw))
	}

	return normalizeContent(strings.Join(parts, "\n")), nil
}

// normalizeContent unwraps JSON-encoded wrappers, unescapes common escape
// sequences and collapses repeated whitespace.
func normalizeContent(s string) string {
	s = strings.TrimSpace(s)

	// Some tools hand back a JSON-encoded wrapper as the content string
	if strings.HasPrefix(s, "{") {
		var wrapper struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err == nil && wrapper.Content != "" {
			s = wrapper.Content
		}
	} else if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			s = inner
		}
	}

	s = unescape(s)
	return collapseWhitespace(s)
}

var unicodeEscapeRe = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)

func unescape(s string) string {
	s = unicodeEscapeRe.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.ParseInt(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(code))
	})

	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\"`, `"`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

func collapseWhitespace(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
