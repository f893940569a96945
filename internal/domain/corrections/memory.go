package corrections

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps corrections in process.
type MemoryStore struct {
	mu   sync.Mutex
	rows []Correction
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Record(_ context.Context, note, rawDescription, suggested, chosen string) (bool, error) {
	if !ShouldRecord(note, suggested, chosen) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Correction{
		ID:           uuid.New(),
		Note:         strings.TrimSpace(note),
		Description:  rawDescription,
		AICategory:   suggested,
		UserCategory: chosen,
		CreatedAt:    s.now(),
	})
	return true, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Correction, 0, min(limit, len(s.rows)))
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.rows[i])
	}
	return out, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
