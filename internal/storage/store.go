package storage

import (
	"context"

	"nkinnov/internal/model"
)

// RecordQuery filters stored log records. Zero values match everything;
// Run and AgentID use -1 for "any".
type RecordQuery struct {
	ExperimentID string
	Case         int
	Stream       string
	Run          int
	Role         *model.Role
	AgentID      int
	Limit        int
}

// AllRecords is a query for every record of one experiment.
func AllRecords(experimentID string) RecordQuery {
	return RecordQuery{ExperimentID: experimentID, Case: -1, Run: -1, AgentID: -1}
}

func (q RecordQuery) matches(stream model.Stream, r model.Record) bool {
	switch {
	case q.ExperimentID != "" && stream.ExperimentID != q.ExperimentID:
		return false
	case q.Case >= 0 && stream.Case != q.Case:
		return false
	case q.Stream != "" && stream.Name != q.Stream:
		return false
	case q.Run >= 0 && r.Run != q.Run:
		return false
	case q.Role != nil && r.Role != *q.Role:
		return false
	case q.AgentID >= 0 && r.AgentID != q.AgentID:
		return false
	}
	return true
}

// Store keeps simulation log records and per-run summaries.
type Store interface {
	Init(ctx context.Context) error
	AppendRecords(ctx context.Context, stream model.Stream, records []model.Record) error
	ListRecords(ctx context.Context, query RecordQuery) ([]model.Record, error)
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, experimentID string, caseIndex, run int) (model.RunSummary, bool, error)
	ListRunSummaries(ctx context.Context, experimentID string) ([]model.RunSummary, error)
}
