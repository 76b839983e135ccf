package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"nkinnov/internal/model"
)

type storedRecord struct {
	stream model.Stream
	record model.Record
}

type summaryKey struct {
	experimentID string
	caseIndex    int
	run          int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     []storedRecord
	summaries   map[summaryKey]model.RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.records = nil
	s.summaries = make(map[summaryKey]model.RunSummary)
	return nil
}

func (s *MemoryStore) AppendRecords(_ context.Context, stream model.Stream, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	for _, r := range records {
		r.Partners = append([]int(nil), r.Partners...)
		s.records = append(s.records, storedRecord{stream: stream, record: r})
	}
	return nil
}

func (s *MemoryStore) ListRecords(_ context.Context, query RecordQuery) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Record
	for _, stored := range s.records {
		if !query.matches(stored.stream, stored.record) {
			continue
		}
		out = append(out, stored.record)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.summaries[summaryKey{summary.ExperimentID, summary.Case, summary.Run}] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, experimentID string, caseIndex, run int) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[summaryKey{experimentID, caseIndex, run}]
	return summary, ok, nil
}

func (s *MemoryStore) ListRunSummaries(_ context.Context, experimentID string) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RunSummary
	for key, summary := range s.summaries {
		if experimentID == "" || key.experimentID == experimentID {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExperimentID != out[j].ExperimentID {
			return out[i].ExperimentID < out[j].ExperimentID
		}
		if out[i].Case != out[j].Case {
			return out[i].Case < out[j].Case
		}
		return out[i].Run < out[j].Run
	})
	return out, nil
}
