//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"nkinnov/internal/model"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sqlx.DB
}

type recordRow struct {
	ExperimentID string  `db:"experiment_id"`
	CaseIndex    int     `db:"case_index"`
	Stream       string  `db:"stream"`
	Run          int     `db:"run"`
	Timestamp    int64   `db:"ts"`
	Role         int     `db:"role"`
	AgentID      int     `db:"agent_id"`
	Power        int     `db:"power"`
	Phase        int     `db:"phase"`
	Score        float64 `db:"score"`
	Partners     []byte  `db:"partners"`
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sqlx.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) AppendRecords(ctx context.Context, stream model.Stream, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	rows := make([]recordRow, len(records))
	for i, r := range records {
		partners, err := EncodePartners(r.Partners)
		if err != nil {
			return err
		}
		rows[i] = recordRow{
			ExperimentID: stream.ExperimentID,
			CaseIndex:    stream.Case,
			Stream:       stream.Name,
			Run:          r.Run,
			Timestamp:    r.Timestamp,
			Role:         int(r.Role),
			AgentID:      r.AgentID,
			Power:        r.Power,
			Phase:        int(r.Phase),
			Score:        r.Score,
			Partners:     partners,
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	// Batches keep well under sqlite's bound-variable limit.
	const batch = 500
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO records (experiment_id, case_index, stream, run, ts, role, agent_id, power, phase, score, partners)
			VALUES (:experiment_id, :case_index, :stream, :run, :ts, :role, :agent_id, :power, :phase, :score, :partners)
		`, rows[start:end]); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRecords(ctx context.Context, query RecordQuery) ([]model.Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if query.ExperimentID != "" {
		where = append(where, "experiment_id = ?")
		args = append(args, query.ExperimentID)
	}
	if query.Case >= 0 {
		where = append(where, "case_index = ?")
		args = append(args, query.Case)
	}
	if query.Stream != "" {
		where = append(where, "stream = ?")
		args = append(args, query.Stream)
	}
	if query.Run >= 0 {
		where = append(where, "run = ?")
		args = append(args, query.Run)
	}
	if query.Role != nil {
		where = append(where, "role = ?")
		args = append(args, int(*query.Role))
	}
	if query.AgentID >= 0 {
		where = append(where, "agent_id = ?")
		args = append(args, query.AgentID)
	}
	stmt := "SELECT experiment_id, case_index, stream, run, ts, role, agent_id, power, phase, score, partners FROM records"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY seq"
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	var rows []recordRow
	if err := db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	out := make([]model.Record, len(rows))
	for i, row := range rows {
		partners, err := DecodePartners(row.Partners)
		if err != nil {
			return nil, fmt.Errorf("decode partners: %w", err)
		}
		out[i] = model.Record{
			Run:       row.Run,
			Timestamp: row.Timestamp,
			Role:      model.Role(row.Role),
			AgentID:   row.AgentID,
			Power:     row.Power,
			Phase:     model.Phase(row.Phase),
			Score:     row.Score,
			Partners:  partners,
		}
	}
	return out, nil
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, summary model.RunSummary) error {
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRunSummary(summary)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO run_summaries (experiment_id, case_index, run, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, case_index, run) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, summary.ExperimentID, summary.Case, summary.Run, summary.SchemaVersion, summary.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, experimentID string, caseIndex, run int) (model.RunSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunSummary{}, false, err
	}

	var payload []byte
	err = db.GetContext(ctx, &payload,
		"SELECT payload FROM run_summaries WHERE experiment_id = ? AND case_index = ? AND run = ?",
		experimentID, caseIndex, run)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunSummary{}, false, nil
	}
	if err != nil {
		return model.RunSummary{}, false, err
	}

	summary, err := DecodeRunSummary(payload)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run summary %s/%d/%d: %w", experimentID, caseIndex, run, err)
	}
	return summary, true, nil
}

func (s *SQLiteStore) ListRunSummaries(ctx context.Context, experimentID string) ([]model.RunSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	stmt := "SELECT payload FROM run_summaries"
	var args []any
	if experimentID != "" {
		stmt += " WHERE experiment_id = ?"
		args = append(args, experimentID)
	}
	stmt += " ORDER BY experiment_id, case_index, run"

	var payloads [][]byte
	if err := db.SelectContext(ctx, &payloads, stmt, args...); err != nil {
		return nil, err
	}
	out := make([]model.RunSummary, 0, len(payloads))
	for _, payload := range payloads {
		summary, err := DecodeRunSummary(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			experiment_id TEXT NOT NULL,
			case_index INTEGER NOT NULL,
			stream TEXT NOT NULL,
			run INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			role INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			power INTEGER NOT NULL,
			phase INTEGER NOT NULL,
			score REAL NOT NULL,
			partners BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS records_stream ON records (experiment_id, case_index, stream, run);
		CREATE TABLE IF NOT EXISTS run_summaries (
			experiment_id TEXT NOT NULL,
			case_index INTEGER NOT NULL,
			run INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (experiment_id, case_index, run)
		);
	`)
	return err
}
