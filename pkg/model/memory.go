package model

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the deployment-wide embedding width. Embeddings from
// models with a different native width are padded or truncated to this.
const VectorDimension = 768

type UserID string

type ChatID string

// NewChatID generates a new unique ChatID
func NewChatID() ChatID {
	return ChatID(uuid.New().String())
}

// MemoryRecord is the durable trace of one conversational exchange.
// Records are immutable once written: they are created by the persistence
// stage and only ever read afterwards, by recall and by history listing.
type MemoryRecord struct {
	// ID is a coarse second-granularity timestamp. Monotonic enough for
	// the expected write rate; collisions overwrite, which is acceptable
	// for same-second duplicates of the same exchange.
	ID             int64
	Vector         []float32
	Question       string
	Response       string
	UserID         UserID
	AppID          string
	Timestamp      time.Time
	ExtractedFacts string
	ChatID         ChatID
	ChatName       string
}

// Summary renders the record as a prior-turn snippet for prompt context.
func (r *MemoryRecord) Summary() string {
	return r.Question + "\nResponse: " + r.Response
}

// SearchFilter scopes memory reads. AppID is mandatory: every search and
// scroll call must be scoped to one logical deployment.
type SearchFilter struct {
	AppID  string
	UserID UserID
	ChatID ChatID
}
