package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// MemoryStore keeps reports in process
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]Report
	now     func() time.Time
}

// NewMemoryStore creates an empty store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		reports: make(map[string]Report),
		now:     now,
	}
}

// Record stores r unless a newer report for the same unit is already held
func (s *MemoryStore) Record(_ context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.reports[r.UnitID]; ok && existing.ReportedAt.After(r.ReportedAt) {
		return nil
	}
	s.reports[r.UnitID] = r
	return nil
}

// Unit returns the latest state of a unit
func (s *MemoryStore) Unit(_ context.Context, unitID string) (eligibility.Unit, error) {
	s.mu.RLock()
	r, ok := s.reports[unitID]
	s.mu.RUnlock()

	if !ok {
		return eligibility.Unit{}, tracker.ErrUnitNotFound
	}
	return r.Unit(s.now()), nil
}

// Units returns every known unit ordered by id
func (s *MemoryStore) Units(_ context.Context) ([]eligibility.Unit, error) {
	now := s.now()

	s.mu.RLock()
	units := make([]eligibility.Unit, 0, len(s.reports))
	for _, r := range s.reports {
		units = append(units, r.Unit(now))
	}
	s.mu.RUnlock()

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}
