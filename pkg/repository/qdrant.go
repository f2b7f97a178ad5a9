package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

const scrollLimit = 100

// QdrantRepo implements Repository against the Qdrant REST API.
type QdrantRepo struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client

	initMu      sync.Mutex
	initialized bool
}

type QdrantOption func(*QdrantRepo)

func WithQdrantHTTPClient(hc *http.Client) QdrantOption {
	return func(r *QdrantRepo) {
		r.httpClient = hc
	}
}

// NewQdrant creates a Qdrant-backed repository. dimension is the vector
// size the collection is created with.
func NewQdrant(baseURL, collection string, dimension int, opts ...QdrantOption) (*QdrantRepo, error) {
	if baseURL == "" {
		return nil, goerr.New("qdrant base URL is required")
	}
	if collection == "" {
		return nil, goerr.New("qdrant collection name is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("vector dimension must be positive", goerr.V("dimension", dimension))
	}

	r := &QdrantRepo{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// EnsureCollection lazily checks or creates the collection. Safe under a
// first-access race: concurrent callers serialize on the mutex and a
// collection created by someone else counts as success.
func (r *QdrantRepo) EnsureCollection(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.initialized {
		return nil
	}

	url := r.baseURL + "/collections/" + r.collection
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create collection check request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to check collection", goerr.V("collection", r.collection))
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if err := r.createCollection(ctx); err != nil {
			return err
		}
		logging.From(ctx).Info("created qdrant collection",
			"collection", r.collection, "dimension", r.dimension)
	case resp.StatusCode >= 400:
		return goerr.New("collection check failed",
			goerr.V("collection", r.collection),
			goerr.V("status", resp.StatusCode))
	}

	r.initialized = true
	return nil
}

func (r *QdrantRepo) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"default": map[string]any{
				"size":     r.dimension,
				"distance": "Cosine",
			},
		},
	}

	var out json.RawMessage
	if err := r.call(ctx, http.MethodPut, "/collections/"+r.collection, body, &out); err != nil {
		// Another process may have created it between check and create.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", r.collection))
	}

	return nil
}

func (r *QdrantRepo) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	if err := r.EnsureCollection(ctx); err != nil {
		return err
	}
	if len(record.Vector) != r.dimension {
		return goerr.New("vector dimension mismatch",
			goerr.V("expected", r.dimension),
			goerr.V("got", len(record.Vector)))
	}

	body := map[string]any{
		"points": []map[string]any{
			{
				"id": record.ID,
				"vectors": map[string]any{
					"default": record.Vector,
				},
				"payload": recordPayload(record),
			},
		},
	}

	var out json.RawMessage
	if err := r.call(ctx, http.MethodPut, "/collections/"+r.collection+"/points", body, &out); err != nil {
		return goerr.Wrap(err, "failed to upsert point", goerr.V("id", record.ID))
	}

	return nil
}

func (r *QdrantRepo) Search(ctx context.Context, vector []float32, filter model.SearchFilter, limit int) ([]*model.MemoryRecord, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := r.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector": map[string]any{
			"name":   "default",
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"must": mustConditions(filter),
		},
	}

	var result struct {
		Result []struct {
			ID      int64          `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := r.call(ctx, http.MethodPost, "/collections/"+r.collection+"/points/search", body, &result); err != nil {
		return nil, goerr.Wrap(err, "failed to search points")
	}

	records := make([]*model.MemoryRecord, 0, len(result.Result))
	for _, hit := range result.Result {
		if hit.Payload == nil {
			logging.From(ctx).Warn("search hit missing payload", "id", hit.ID)
			continue
		}
		records = append(records, recordFromPayload(hit.ID, hit.Payload))
	}

	return records, nil
}

func (r *QdrantRepo) Scroll(ctx context.Context, filter model.SearchFilter) ([]*model.MemoryRecord, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := r.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"limit":        scrollLimit,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": mustConditions(filter),
		},
	}

	var result struct {
		Result struct {
			Points []struct {
				ID      int64          `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := r.call(ctx, http.MethodPost, "/collections/"+r.collection+"/points/scroll", body, &result); err != nil {
		return nil, goerr.Wrap(err, "failed to scroll points")
	}

	records := make([]*model.MemoryRecord, 0, len(result.Result.Points))
	for _, point := range result.Result.Points {
		if point.Payload == nil {
			continue
		}
		records = append(records, recordFromPayload(point.ID, point.Payload))
	}

	return records, nil
}

func (r *QdrantRepo) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return goerr.New("qdrant returned error",
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}

	return nil
}

func mustConditions(filter model.SearchFilter) []map[string]any {
	must := []map[string]any{
		{"key": "app_id", "match": map[string]any{"value": filter.AppID}},
	}
	if filter.UserID != "" {
		must = append(must, map[string]any{
			"key": "user_id", "match": map[string]any{"value": string(filter.UserID)},
		})
	}
	if filter.ChatID != "" {
		must = append(must, map[string]any{
			"key": "chat_id", "match": map[string]any{"value": string(filter.ChatID)},
		})
	}
	return must
}

// recordPayload flattens a record into filterable point attributes.
// Empty optional fields are omitted, except extracted_facts which is kept
// even when empty so readers can distinguish "nothing extracted" from a
// record written before extraction existed.
func recordPayload(record *model.MemoryRecord) map[string]any {
	payload := map[string]any{
		"question":        record.Question,
		"response":        record.Response,
		"app_id":          record.AppID,
		"timestamp":       record.Timestamp.UTC().Format(time.RFC3339),
		"extracted_facts": record.ExtractedFacts,
	}
	if record.UserID != "" {
		payload["user_id"] = string(record.UserID)
	}
	if record.ChatID != "" {
		payload["chat_id"] = string(record.ChatID)
	}
	if record.ChatName != "" {
		payload["chat_name"] = record.ChatName
	}
	return payload
}

func recordFromPayload(id int64, payload map[string]any) *model.MemoryRecord {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}

	record := &model.MemoryRecord{
		ID:             id,
		Question:       str("question"),
		Response:       str("response"),
		UserID:         model.UserID(str("user_id")),
		AppID:          str("app_id"),
		ExtractedFacts: str("extracted_facts"),
		ChatID:         model.ChatID(str("chat_id")),
		ChatName:       str("chat_name"),
	}
	if ts, err := time.Parse(time.RFC3339, str("timestamp")); err == nil {
		record.Timestamp = ts
	}

	return record
}
