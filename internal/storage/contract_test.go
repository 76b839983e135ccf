package storage

import (
	"context"
	"errors"
	"testing"

	"nkinnov/internal/model"
)

func sampleRecords(run int) []model.Record {
	return []model.Record{
		{Run: run, Timestamp: 1, Role: model.RoleProvider, AgentID: 0, Power: 1, Phase: model.PhaseQ, Score: 0.25, Partners: []int{2, 0}},
		{Run: run, Timestamp: 1, Role: model.RoleInnovator, AgentID: 0, Power: 2, Phase: model.PhaseM, Score: 0.5},
		{Run: run, Timestamp: 2, Role: model.RoleInnovator, AgentID: 1, Power: 1, Phase: model.PhaseMagain, Score: 0.75, Partners: []int{0}},
	}
}

func sampleSummary(experimentID string, caseIndex, run int) model.RunSummary {
	s := model.RunSummary{
		ExperimentID: experimentID,
		Case:         caseIndex,
		Run:          run,
		Seed:         rngSeedFixture(run),
		N:            6,
		K:            1,
		Innovators:   2,
		Providers:    1,
		Results: []model.StrategyResult{{
			Strategy:    model.StrategyLicensing,
			Stream:      "o_n6k1_x2y1_licensing.txt",
			Rounds:      9,
			Records:     27,
			MeanScore:   0.6,
			BestScore:   0.75,
			FinalScores: []float64{0.45, 0.75},
		}},
	}
	Stamp(&s)
	return s
}

func rngSeedFixture(run int) int64 { return int64(run) * 7919 }

// exerciseStore checks the behaviour every backend shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	closed := model.Stream{ExperimentID: "exp-1", Case: 0, Name: "o_n6k1_x2_closed.txt"}
	licensing := model.Stream{ExperimentID: "exp-1", Case: 0, Name: "o_n6k1_x2y1_licensing.txt"}
	other := model.Stream{ExperimentID: "exp-2", Case: 1, Name: "o_n6k1_x2_closed.txt"}

	for _, step := range []struct {
		stream model.Stream
		run    int
	}{{closed, 0}, {licensing, 0}, {closed, 1}, {other, 0}} {
		if err := store.AppendRecords(ctx, step.stream, sampleRecords(step.run)); err != nil {
			t.Fatalf("append %s: %v", step.stream, err)
		}
	}

	all, err := store.ListRecords(ctx, AllRecords("exp-1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 9 {
		t.Fatalf("expected 9 exp-1 records, got %d", len(all))
	}
	if got := all[0].String(); got != "0\t1\tPROVIDER\t0\t1\tQ\t0.25\t[2, 0]" {
		t.Fatalf("first record changed in storage: %q", got)
	}
	if all[1].Partners != nil {
		t.Fatalf("empty partner list must come back nil, got %v", all[1].Partners)
	}

	q := AllRecords("exp-1")
	q.Stream = closed.Name
	q.Run = 1
	runOne, err := store.ListRecords(ctx, q)
	if err != nil {
		t.Fatalf("list run 1: %v", err)
	}
	if len(runOne) != 3 || runOne[0].Run != 1 {
		t.Fatalf("unexpected run filter result: %+v", runOne)
	}

	role := model.RoleInnovator
	q = AllRecords("")
	q.Role = &role
	q.AgentID = 1
	q.Limit = 2
	limited, err := store.ListRecords(ctx, q)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].AgentID != 1 || limited[0].Role != model.RoleInnovator {
		t.Fatalf("unexpected filtered records: %+v", limited)
	}

	for _, s := range []model.RunSummary{sampleSummary("exp-1", 0, 1), sampleSummary("exp-1", 0, 0), sampleSummary("exp-2", 1, 0)} {
		if err := store.SaveRunSummary(ctx, s); err != nil {
			t.Fatalf("save summary: %v", err)
		}
	}
	got, ok, err := store.GetRunSummary(ctx, "exp-1", 0, 1)
	if err != nil || !ok {
		t.Fatalf("get summary: ok=%v err=%v", ok, err)
	}
	if got.Seed != rngSeedFixture(1) || len(got.Results) != 1 || got.Results[0].Strategy != model.StrategyLicensing {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if _, ok, err := store.GetRunSummary(ctx, "exp-1", 3, 0); err != nil || ok {
		t.Fatalf("expected missing summary, ok=%v err=%v", ok, err)
	}

	listed, err := store.ListRunSummaries(ctx, "exp-1")
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(listed) != 2 || listed[0].Run != 0 || listed[1].Run != 1 {
		t.Fatalf("summaries not ordered by run: %+v", listed)
	}

	stale := sampleSummary("exp-1", 0, 2)
	stale.SchemaVersion = 0
	if err := store.SaveRunSummary(ctx, stale); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
