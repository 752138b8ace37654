package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chesslens/chesslens/internal/domain"
)

// memrepo is a development-only in-memory repository used when no database
// is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	byID      map[int64]*domain.Analysis
	bySession map[string]*domain.Analysis
	order     []*domain.Analysis // insertion order, latest last
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[int64]*domain.Analysis),
		bySession: make(map[string]*domain.Analysis),
	}
}

func (m *memrepo) InsertAnalysis(ctx context.Context, a *domain.Analysis) (int64, error) {
	if a == nil {
		return 0, ErrDuplicateAnalysis
	}
	key := strings.TrimSpace(a.SessionUUID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySession[key]; exists {
		return 0, ErrDuplicateAnalysis
	}

	m.nextID++
	cp := *a
	cp.ID = m.nextID

	m.byID[cp.ID] = &cp
	m.bySession[key] = &cp
	m.order = append(m.order, &cp)
	return cp.ID, nil
}

func (m *memrepo) GetRecentAnalyses(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]*domain.Analysis(nil), m.order...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.Analysis, len(items))
	for i, a := range items {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (m *memrepo) GetAnalysisBySession(ctx context.Context, sessionUUID string) (*domain.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.bySession[strings.TrimSpace(sessionUUID)]; ok && a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}
