package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// Repository is the gateway to the vector store holding memory records.
type Repository interface {
	// EnsureCollection checks that the backing collection exists and
	// creates it when missing. Idempotent; "already exists" is success.
	EnsureCollection(ctx context.Context) error

	// Upsert writes one immutable memory record. record.Vector is the
	// similarity key, the remaining fields the filterable payload.
	Upsert(ctx context.Context, record *model.MemoryRecord) error

	// Search performs a vector similarity search scoped by filter and
	// returns up to limit records ranked by similarity.
	Search(ctx context.Context, vector []float32, filter model.SearchFilter, limit int) ([]*model.MemoryRecord, error)

	// Scroll fetches all records matching the filter, unranked. Used for
	// history replay and cross-session listing; no pagination at the
	// expected scale.
	Scroll(ctx context.Context, filter model.SearchFilter) ([]*model.MemoryRecord, error)
}

// validateFilter rejects reads that are not scoped by application id.
// An unscoped read is a defect, not a configuration.
func validateFilter(filter model.SearchFilter) error {
	if filter.AppID == "" {
		return goerr.New("search filter requires an application id")
	}
	return nil
}
