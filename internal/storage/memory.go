package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// MemoryStore keeps runs in process. Runs are copied on the way in and out
// so callers cannot alias stored results.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.runs = make(map[string][]byte)
		s.initialized = true
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	if run.ID == "" {
		return apperrors.Config("storage.MemoryStore.SaveRun", "run id is required")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return apperrors.Wrapf(err, "encode run %s", run.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Run{}, false, errNotInitialized
	}
	payload, ok := s.runs[id]
	if !ok {
		return Run{}, false, nil
	}
	run, err := decodeRun(id, payload)
	return run, err == nil, err
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	runs := make([]Run, 0, len(s.runs))
	for id, payload := range s.runs {
		run, err := decodeRun(id, payload)
		if err != nil {
			return nil, err
		}
		run.Result = nil
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
