package chat

import (
	"encoding/json"
	"unicode/utf8"
)

// TruncationMarker is appended wherever a field was cut.
const TruncationMarker = "... (truncated)"

// Bounds are the payload sanitizer limits. They exist because the memory
// store and the extraction collaborator both reject oversized payloads;
// the defaults match the stores this was tuned against, and callers may
// override any of them.
type Bounds struct {
	// ResponseLimit caps the stored response field, in characters.
	ResponseLimit int
	// FactsLimit caps the stored extracted-facts field, in characters.
	FactsLimit int
	// ExtractionCeiling caps the serialized extraction request, in bytes.
	ExtractionCeiling int
	// ExtractionChunk is the step size when shrinking an oversized
	// extraction request.
	ExtractionChunk int
}

func DefaultBounds() Bounds {
	return Bounds{
		ResponseLimit:     8000,
		FactsLimit:        1000,
		ExtractionCeiling: 1800,
		ExtractionChunk:   500,
	}
}

// Truncate cuts s at limit, replacing the tail with TruncationMarker so
// the final string never exceeds limit. Cuts land on rune boundaries so
// the result stays valid UTF-8. Idempotent: truncating an
// already-truncated string changes nothing.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= len(TruncationMarker) {
		return cutAtRune(s, limit)
	}
	return cutAtRune(s, limit-len(TruncationMarker)) + TruncationMarker
}

// cutAtRune cuts s at or before n bytes without splitting a rune.
// Requires n < len(s).
func cutAtRune(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ExtractionRequest is the payload sent to the fact-extraction
// collaborator. Its serialized size is bounded; see Bounds.FitExtraction.
type ExtractionRequest struct {
	Question string `json:"question"`
	Response string `json:"response"`
	UserID   string `json:"user_id,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}

func (r ExtractionRequest) serializedSize() int {
	data, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	return len(data)
}

// FitExtraction shrinks the request's response field in ExtractionChunk
// steps until the serialized request fits under ExtractionCeiling. If
// removing the response entirely still does not fit, the second return
// is false and extraction must be skipped.
func (b Bounds) FitExtraction(req ExtractionRequest) (ExtractionRequest, bool) {
	for req.serializedSize() > b.ExtractionCeiling {
		if req.Response == "" {
			return req, false
		}

		next := len(req.Response) - b.ExtractionChunk
		if next <= 0 {
			req.Response = ""
			continue
		}
		req.Response = Truncate(req.Response, next)
	}

	return req, true
}
