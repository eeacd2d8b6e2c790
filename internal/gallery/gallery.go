// Package gallery persists generated image records.
package gallery

import (
	"context"
	"sort"
	"sync"

	"studio/internal/domain"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Sink receives finished records. Append is all-or-nothing per batch.
type Sink interface {
	Append(ctx context.Context, records []domain.GeneratedImageRecord) error
}

// Store is the full gallery surface used by the HTTP API.
type Store interface {
	Sink
	List(ctx context.Context, favoritesOnly bool, limit int) ([]domain.GeneratedImageRecord, error)
	SetFavorite(ctx context.Context, id string, favorite bool) (domain.GeneratedImageRecord, error)
}

// MemoryStore keeps records in process. It backs the API when no database is
// configured and stands in for Postgres in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.GeneratedImageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.GeneratedImageRecord)}
}

func (m *MemoryStore) Append(ctx context.Context, records []domain.GeneratedImageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, exists := m.records[r.ID]; exists {
			continue
		}
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, favoritesOnly bool, limit int) ([]domain.GeneratedImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	out := make([]domain.GeneratedImageRecord, 0, len(m.records))
	for _, r := range m.records {
		if favoritesOnly && !r.Favorite {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetFavorite(ctx context.Context, id string, favorite bool) (domain.GeneratedImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeneratedImageRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return domain.GeneratedImageRecord{}, domain.ErrNotFound
	}
	r.Favorite = favorite
	m.records[id] = r
	return r, nil
}

var _ Store = (*MemoryStore)(nil)
