package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"nkinnov/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	experimentsDir = "experiments"
)

// CaseInfo describes one case as it was run.
type CaseInfo struct {
	Index      int              `json:"index"`
	Source     string           `json:"source"`
	N          int              `json:"n"`
	K          int              `json:"k"`
	Runs       int              `json:"runs"`
	Strategies []model.Strategy `json:"strategies"`
	Innovators int              `json:"innovators"`
	Providers  int              `json:"providers"`
}

// ExperimentConfig records how an experiment was invoked.
type ExperimentConfig struct {
	ExperimentID string     `json:"experiment_id"`
	CaseFile     string     `json:"case_file"`
	OutputDir    string     `json:"output_dir"`
	Workers      int        `json:"workers"`
	Store        string     `json:"store,omitempty"`
	Cases        []CaseInfo `json:"cases"`
}

// ExperimentArtifacts is everything written for one experiment.
type ExperimentArtifacts struct {
	Config     ExperimentConfig    `json:"config"`
	Summaries  []model.RunSummary  `json:"summaries"`
	Aggregates []StrategyAggregate `json:"aggregates"`
}

type RunIndexEntry struct {
	ExperimentID string  `json:"experiment_id"`
	CaseFile     string  `json:"case_file"`
	Cases        int     `json:"cases"`
	Runs         int     `json:"runs"`
	Records      int     `json:"records"`
	Workers      int     `json:"workers"`
	BestScore    float64 `json:"best_score"`
	DurationMS   int64   `json:"duration_ms"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func ExperimentDir(baseDir, id string) string {
	return filepath.Join(baseDir, experimentsDir, id)
}

// WriteExperimentArtifacts writes config.json, summaries.json and
// aggregates.csv under experiments/<id> and returns that directory.
func WriteExperimentArtifacts(baseDir string, artifacts ExperimentArtifacts) (string, error) {
	id := artifacts.Config.ExperimentID
	if id == "" {
		return "", fmt.Errorf("experiment id is required")
	}
	dir := ExperimentDir(baseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "summaries.json"), artifacts.Summaries); err != nil {
		return "", err
	}
	if err := writeAggregatesCSV(filepath.Join(dir, "aggregates.csv"), artifacts.Aggregates); err != nil {
		return "", err
	}
	return dir, nil
}

// ReadExperimentArtifacts loads what WriteExperimentArtifacts wrote.
// Aggregates are recomputed from the summaries.
func ReadExperimentArtifacts(baseDir, id string) (ExperimentArtifacts, bool, error) {
	if id == "" {
		return ExperimentArtifacts{}, false, fmt.Errorf("experiment id is required")
	}
	dir := ExperimentDir(baseDir, id)
	var artifacts ExperimentArtifacts
	ok, err := readJSON(filepath.Join(dir, "config.json"), &artifacts.Config)
	if err != nil || !ok {
		return ExperimentArtifacts{}, ok, err
	}
	if _, err := readJSON(filepath.Join(dir, "summaries.json"), &artifacts.Summaries); err != nil {
		return ExperimentArtifacts{}, false, err
	}
	artifacts.Aggregates = Aggregate(artifacts.Summaries)
	return artifacts, true, nil
}

func ExportExperimentArtifacts(baseDir, id, outDir string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("experiment id is required")
	}

	src := ExperimentDir(baseDir, id)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, id)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range []string{"config.json", "summaries.json", "aggregates.csv"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.ExperimentID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].ExperimentID == entry.ExperimentID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeAggregatesCSV(path string, aggregates []StrategyAggregate) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"case", "strategy", "runs", "mean_score", "stddev_score", "best_score", "mean_rounds", "mean_timestamp"}); err != nil {
		return err
	}
	for _, a := range aggregates {
		row := []string{
			strconv.Itoa(a.Case),
			a.Strategy.String(),
			strconv.Itoa(a.Runs),
			formatFloat(a.MeanScore),
			formatFloat(a.StdDevScore),
			formatFloat(a.BestScore),
			formatFloat(a.MeanRounds),
			formatFloat(a.MeanTimestamp),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
