package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/agent-eval/internal/stats"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
	getRunStmt    *sql.Stmt
	latestStmt    *sql.Stmt
}

var (
	sqliteOpen              = sql.Open
	sqlitePrepareStatements = (*SQLiteStore).prepareStatements
)

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := sqlitePrepareStatements(st); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			total_evaluations INTEGER NOT NULL,
			pass_count INTEGER NOT NULL,
			fail_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			summary_json BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, created_at, total_evaluations, pass_count, fail_count, error_count, summary_json
				) VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, created_at, total_evaluations, pass_count, fail_count, error_count, summary_json
				FROM runs WHERE id = ?
			`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst: &s.latestStmt,
			query: `
				SELECT id, created_at, total_evaluations, pass_count, fail_count, error_count, summary_json
				FROM runs
				ORDER BY created_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare latest runs: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertRunStmt,
		s.getRunStmt,
		s.latestStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a run record. The run summary is serialized as JSON.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if run.Summary == nil {
		return errors.New("store: nil run summary")
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("store: marshal run summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertRunStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		createdAt.UTC().UnixMilli(),
		run.TotalEvaluations,
		run.Pass,
		run.Fail,
		run.Error,
		summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run: %w", err)
	}
	return nil
}

// GetRun loads a run by id. sql.ErrNoRows passes through unwrapped so
// callers can distinguish not-found from failure.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.getRunStmt.QueryRowContext(ctx, id)
	rec, err := scanRunRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, created_at, total_evaluations, pass_count, fail_count, error_count, summary_json FROM runs WHERE 1=1`)

	var args []any
	if !filter.Since.IsZero() {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, filter.Since.UTC().UnixMilli())
	}
	if !filter.Until.IsZero() {
		sb.WriteString(` AND created_at <= ?`)
		args = append(args, filter.Until.UTC().UnixMilli())
	}
	sb.WriteString(` ORDER BY created_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

// LatestRuns returns the n most recent runs.
func (s *SQLiteStore) LatestRuns(ctx context.Context, n int) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if n <= 0 {
		n = 1
	}

	rows, err := s.latestStmt.QueryContext(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("store: latest runs: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

func scanRunRows(rows *sql.Rows) ([]*RunRecord, error) {
	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

func scanRunRow(scan func(dest ...any) error) (*RunRecord, error) {
	var (
		id          string
		createdAtMS int64
		total       int
		pass        int
		fail        int
		errCount    int
		summaryJSON []byte
	)
	if err := scan(&id, &createdAtMS, &total, &pass, &fail, &errCount, &summaryJSON); err != nil {
		return nil, err
	}

	summary, err := decodeSummary(summaryJSON)
	if err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}

	return &RunRecord{
		ID:               id,
		CreatedAt:        time.UnixMilli(createdAtMS).UTC(),
		TotalEvaluations: total,
		Pass:             pass,
		Fail:             fail,
		Error:            errCount,
		Summary:          summary,
	}, nil
}

func decodeSummary(summaryJSON []byte) (*stats.RunSummary, error) {
	if len(summaryJSON) == 0 {
		return nil, nil
	}
	var out stats.RunSummary
	if err := json.Unmarshal(summaryJSON, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
