package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemRepo implements Repository on chromem-go, a pure Go embedded
// vector database. Suited to single-process deployments and tests where
// running a Qdrant server is not worth it.
//
// chromem has no bulk listing, so the store keeps a side index of records
// for Scroll. Both structures live in one process and are guarded by mu.
type ChromemRepo struct {
	db    *chromem.DB
	appID string

	mu      sync.RWMutex
	col     *chromem.Collection
	records map[int64]*model.MemoryRecord
}

// NewChromem creates an in-process repository. All records belong to the
// given application id; reads with a different scope return nothing.
func NewChromem(appID string) (*ChromemRepo, error) {
	if appID == "" {
		return nil, goerr.New("application id is required")
	}

	return &ChromemRepo{
		db:      chromem.NewDB(),
		appID:   appID,
		records: make(map[int64]*model.MemoryRecord),
	}, nil
}

func (r *ChromemRepo) EnsureCollection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked()
}

func (r *ChromemRepo) ensureLocked() error {
	if r.col != nil {
		return nil
	}

	col, err := r.db.GetOrCreateCollection("memories_"+r.appID, nil, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create chromem collection")
	}

	r.col = col
	return nil
}

func (r *ChromemRepo) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLocked(); err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(record.ID, 10),
		Content:   record.Summary(),
		Embedding: record.Vector,
		Metadata:  chromemMetadata(record),
	}

	if err := r.col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", record.ID))
	}

	clone := *record
	r.records[record.ID] = &clone
	return nil
}

func (r *ChromemRepo) Search(ctx context.Context, vector []float32, filter model.SearchFilter, limit int) ([]*model.MemoryRecord, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.col == nil || r.col.Count() == 0 || filter.AppID != r.appID {
		return nil, nil
	}

	// chromem rejects nResults larger than the matching document count,
	// so clamp against the side index before querying.
	n := limit
	if count := r.countLocked(filter); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{"app_id": filter.AppID}
	if filter.UserID != "" {
		where["user_id"] = string(filter.UserID)
	}
	if filter.ChatID != "" {
		where["chat_id"] = string(filter.ChatID)
	}

	results, err := r.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem query failed")
	}

	records := make([]*model.MemoryRecord, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseInt(res.ID, 10, 64)
		if err != nil {
			continue
		}
		if record, ok := r.records[id]; ok {
			clone := *record
			records = append(records, &clone)
		}
	}

	return records, nil
}

func (r *ChromemRepo) countLocked(filter model.SearchFilter) int {
	n := 0
	for _, record := range r.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.ChatID != "" && record.ChatID != filter.ChatID {
			continue
		}
		n++
	}
	return n
}

func (r *ChromemRepo) Scroll(ctx context.Context, filter model.SearchFilter) ([]*model.MemoryRecord, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.AppID != r.appID {
		return nil, nil
	}

	var records []*model.MemoryRecord
	for _, record := range r.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.ChatID != "" && record.ChatID != filter.ChatID {
			continue
		}
		clone := *record
		records = append(records, &clone)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func chromemMetadata(record *model.MemoryRecord) map[string]string {
	metadata := map[string]string{
		"app_id":          record.AppID,
		"question":        record.Question,
		"extracted_facts": record.ExtractedFacts,
		"timestamp":       record.Timestamp.UTC().Format(time.RFC3339),
	}
	if record.UserID != "" {
		metadata["user_id"] = string(record.UserID)
	}
	if record.ChatID != "" {
		metadata["chat_id"] = string(record.ChatID)
	}
	if record.ChatName != "" {
		metadata["chat_name"] = record.ChatName
	}
	return metadata
}
