// Package snapshotloader batches snapshot reads issued while serving one request.
package snapshotloader

import (
	"context"
	"fmt"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// Loader collects snapshot lookups and resolves them with one GetByIDs call.
type Loader struct {
	loader *dataloader.Loader
}

// New creates a loader over repo
func New(repo repository.SnapshotRepository) *Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results := make([]*dataloader.Result, len(keys))
				for j := range results {
					results[j] = &dataloader.Result{Error: fmt.Errorf("invalid UUID: %w", err)}
				}
				return results
			}
			ids[i] = id
		}

		snapshots, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[uuid.UUID]domain.EntrySnapshot, len(snapshots))
		for _, s := range snapshots {
			byID[s.ID] = s
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if s, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: s}
			} else {
				results[i] = &dataloader.Result{Error: domain.NotFoundf("entry snapshot %s not found", id)}
			}
		}
		return results
	}

	return &Loader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond)),
	}
}

// Load returns one snapshot, batched with concurrent calls
func (l *Loader) Load(ctx context.Context, id uuid.UUID) (domain.EntrySnapshot, error) {
	value, err := l.loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.EntrySnapshot{}, err
	}
	snapshot, ok := value.(domain.EntrySnapshot)
	if !ok {
		return domain.EntrySnapshot{}, fmt.Errorf("unexpected loader value %T", value)
	}
	return snapshot, nil
}

// LoadMany returns snapshots in the order of ids
func (l *Loader) LoadMany(ctx context.Context, ids []uuid.UUID) ([]domain.EntrySnapshot, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(id.String())
	}
	values, errs := l.loader.LoadMany(ctx, keys)()
	out := make([]domain.EntrySnapshot, 0, len(values))
	for i, value := range values {
		if len(errs) > i && errs[i] != nil {
			return nil, errs[i]
		}
		snapshot, ok := value.(domain.EntrySnapshot)
		if !ok {
			return nil, fmt.Errorf("unexpected loader value %T", value)
		}
		out = append(out, snapshot)
	}
	return out, nil
}
