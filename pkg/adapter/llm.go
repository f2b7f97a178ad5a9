package adapter

import (
	"context"

	"github.com/m-mizutani/recall/pkg/model"
)

// LLM is the interface for the model-serving endpoint. Both calls are
// stateless, non-streaming, single attempt; retry policy belongs to the
// caller (and the pipeline deliberately has none).
type LLM interface {
	// Embed converts text to an embedding vector in the model's native
	// dimension. Use PadEmbedding to normalize to the deployment dimension.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Chat sends a message sequence and returns the assistant reply text.
	Chat(ctx context.Context, messages []model.Message) (string, error)
}

// PadEmbedding normalizes a vector to dim: longer vectors are truncated,
// shorter ones are zero-padded. The result always has length dim.
func PadEmbedding(vec []float32, dim int) []float32 {
	if len(vec) >= dim {
		return vec[:dim]
	}

	padded := make([]float32, dim)
	copy(padded, vec)
	return padded
}
