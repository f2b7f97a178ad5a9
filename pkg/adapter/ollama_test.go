package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
)

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/api/embeddings")
		gt.Equal(t, r.Method, http.MethodPost)

		var req map[string]any
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.Equal(t, req["model"], "test-embed")
		gt.Equal(t, req["prompt"], "hello")

		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		}))
	}))
	defer srv.Close()

	client, err := adapter.NewOllama(srv.URL, adapter.WithEmbeddingModel("test-embed"))
	gt.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.A(t, vec).Length(3)
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/api/chat")

		var req struct {
			Model    string          `json:"model"`
			Messages []model.Message `json:"messages"`
			Stream   bool            `json:"stream"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.Equal(t, req.Stream, false)
		gt.A(t, req.Messages).Length(2)
		gt.Equal(t, req.Messages[0].Role, model.RoleSystem)

		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "hi there"},
		}))
	}))
	defer srv.Close()

	client, err := adapter.NewOllama(srv.URL)
	gt.NoError(t, err)

	reply, err := client.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleUser, Content: "hello"},
	})
	gt.NoError(t, err)
	gt.Equal(t, reply, "hi there")
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := adapter.NewOllama(srv.URL)
	gt.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	gt.Error(t, err)
}

func TestPadEmbedding(t *testing.T) {
	t.Run("shorter vectors are zero-padded", func(t *testing.T) {
		vec := adapter.PadEmbedding([]float32{1, 2}, 4)
		gt.A(t, vec).Length(4)
		gt.Equal(t, vec, []float32{1, 2, 0, 0})
	})

	t.Run("longer vectors are truncated", func(t *testing.T) {
		vec := adapter.PadEmbedding([]float32{1, 2, 3, 4, 5}, 3)
		gt.A(t, vec).Length(3)
		gt.Equal(t, vec, []float32{1, 2, 3})
	})

	t.Run("exact dimension is unchanged", func(t *testing.T) {
		vec := adapter.PadEmbedding([]float32{1, 2, 3}, 3)
		gt.Equal(t, vec, []float32{1, 2, 3})
	})

	t.Run("nil input yields zero vector", func(t *testing.T) {
		vec := adapter.PadEmbedding(nil, 2)
		gt.Equal(t, vec, []float32{0, 0})
	})
}
