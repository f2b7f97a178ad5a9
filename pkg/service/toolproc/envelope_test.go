package toolproc

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		env, ok := parseEnvelope(`{"jsonrpc":"2.0","id":1,"result":{"content":"hi"}}`)
		gt.True(t, ok)
		gt.V(t, env.ID).NotNil()
		gt.Equal(t, *env.ID, int64(1))
	})

	t.Run("log noise is not a violation", func(t *testing.T) {
		for _, line := range []string{
			"",
			"starting server on stdio",
			"{broken json",
			`{"this is": "not jsonrpc"}`,
			`[1,2,3]`,
		} {
			_, ok := parseEnvelope(line)
			gt.False(t, ok)
		}
	})
}

func TestLooksReady(t *testing.T) {
	gt.True(t, looksReady("Server ready"))
	gt.True(t, looksReady("now LISTENING on stdio"))
	gt.True(t, looksReady("worker started"))
	gt.False(t, looksReady("loading model"))
}

func TestExtractContent(t *testing.T) {
	t.Run("plain string", func(t *testing.T) {
		out, err := extractContent(json.RawMessage(`{"content":"hello  world"}`))
		gt.NoError(t, err)
		gt.Equal(t, out, "hello world")
	})

	t.Run("array of text items", func(t *testing.T) {
		out, err := extractContent(json.RawMessage(
			`{"content":[{"type":"text","text":"first"},{"type":"text","text":"second"}]}`))
		gt.NoError(t, err)
		gt.Equal(t, out, "first\nsecond")
	})

	t.Run("array of plain strings", func(t *testing.T) {
		out, err := extractContent(json.RawMessage(`{"content":["a","b"]}`))
		gt.NoError(t, err)
		gt.Equal(t, out, "a\nb")
	})

	t.Run("json wrapper string is unwrapped", func(t *testing.T) {
		out, err := extractContent(json.RawMessage(
			`{"content":"{\"content\": \"inner text\"}"}`))
		gt.NoError(t, err)
		gt.Equal(t, out, "inner text")
	})

	t.Run("escape sequences", func(t *testing.T) {
		out, err := extractContent(json.RawMessage(
			`{"content":"line1\\nline2 \\\"quoted\\\" \\u0041"}`))
		gt.NoError(t, err)
		gt.Equal(t, out, "line1\nline2 \"quoted\" A")
	})

	t.Run("isError rejects", func(t *testing.T) {
		_, err := extractContent(json.RawMessage(
			`{"isError":true,"content":[{"type":"text","text":"boom"}]}`))
		gt.Error(t, err)
	})

	t.Run("error field rejects", func(t *testing.T) {
		_, err := extractContent(json.RawMessage(
			`{"error":{"code":-32000,"message":"bad"}}`))
		gt.Error(t, err)
	})

	t.Run("malformed result rejects", func(t *testing.T) {
		_, err := extractContent(json.RawMessage(`"just a string"`))
		gt.Error(t, err)
	})
}

func TestCollapseWhitespace(t *testing.T) {
	gt.Equal(t, collapseWhitespace("a  \t b\n\n\n\nc"), "a b\n\nc")
}
