// Package store handles SQLite persistence of analysis history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/gradelens/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned for an unknown analysis id.
var ErrNotFound = errors.New("analysis not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps SQLite access for stored analyses.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close() // best-effort close on migration failure
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			students INTEGER NOT NULL,
			subjects INTEGER NOT NULL,
			weak_count INTEGER NOT NULL,
			report_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS analysis_subjects (
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			subject TEXT NOT NULL,
			mean REAL,
			min REAL,
			max REAL,
			sd REAL,
			count INTEGER NOT NULL,
			PRIMARY KEY (analysis_id, subject)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_subjects_subject ON analysis_subjects(subject);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAnalysis stores a report and its per-subject trends in one
// transaction and returns the new id.
func (s *Store) InsertAnalysis(ctx context.Context, meta model.AnalysisMeta, report model.ClassReport) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() // best-effort rollback
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analyses (id, created_at, source_name, source_kind, students, subjects, weak_count, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		meta.CreatedAt.UTC().Format(timeLayout),
		meta.SourceName,
		meta.SourceKind,
		len(report.Students),
		len(report.SubjectKeys),
		len(report.WeakSubjects),
		string(payload),
	); err != nil {
		return "", err
	}

	if len(report.SubjectKeys) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO analysis_subjects (analysis_id, position, subject, mean, min, max, sd, count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer func() {
			_ = stmt.Close() // best-effort statement close
		}()
		for i, subject := range report.SubjectKeys {
			trend := report.Trends[subject]
			if _, err := stmt.ExecContext(ctx, id, i, subject,
				nullScore(trend.Mean), nullScore(trend.Min), nullScore(trend.Max), nullScore(trend.SD),
				len(report.SubjectValues(subject)),
			); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	committed = true
	return id, nil
}

// ListAnalyses returns stored analyses oldest first. Since drops older runs;
// Last keeps only the most recent N.
func (s *Store) ListAnalyses(ctx context.Context, cfg model.HistoryConfig) ([]model.AnalysisSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, created_at, source_name, source_kind, students, subjects, weak_count FROM (
			SELECT rowid AS seq, * FROM analyses
			WHERE %s
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // best-effort rows close
	}()

	var result []model.AnalysisSummary
	for rows.Next() {
		var summary model.AnalysisSummary
		var createdAt string
		if err := rows.Scan(&summary.ID, &createdAt, &summary.SourceName, &summary.SourceKind,
			&summary.Students, &summary.Subjects, &summary.WeakCount); err != nil {
			return nil, err
		}
		if summary.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAnalysis loads one stored analysis with its full report.
func (s *Store) GetAnalysis(ctx context.Context, id string) (model.StoredAnalysis, error) {
	var stored model.StoredAnalysis
	var createdAt, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source_name, source_kind, students, subjects, weak_count, report_json
		 FROM analyses WHERE id = ?`, id,
	).Scan(&stored.ID, &createdAt, &stored.SourceName, &stored.SourceKind,
		&stored.Students, &stored.Subjects, &stored.WeakCount, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StoredAnalysis{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.StoredAnalysis{}, err
	}
	if stored.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return model.StoredAnalysis{}, err
	}
	if err := json.Unmarshal([]byte(payload), &stored.Report); err != nil {
		return model.StoredAnalysis{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return stored, nil
}

// SubjectHistory returns one subject's mean across stored analyses, oldest
// first. Analyses without the subject are skipped.
func (s *Store) SubjectHistory(ctx context.Context, subject string) ([]model.SubjectPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.created_at, s.mean
		 FROM analysis_subjects s
		 JOIN analyses a ON a.id = s.analysis_id
		 WHERE s.subject = ?
		 ORDER BY a.created_at ASC, a.rowid ASC`, subject)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // best-effort rows close
	}()

	var result []model.SubjectPoint
	for rows.Next() {
		var point model.SubjectPoint
		var createdAt string
		var mean sql.NullFloat64
		if err := rows.Scan(&point.AnalysisID, &createdAt, &mean); err != nil {
			return nil, err
		}
		if point.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, err
		}
		if mean.Valid {
			point.Mean = model.Numeric(mean.Float64)
		}
		result = append(result, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// nullScore stores missing and non-finite scores as NULL.
func nullScore(s model.Score) sql.NullFloat64 {
	v, ok := s.Value()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		ok = false
	}
	return sql.NullFloat64{Float64: v, Valid: ok}
}
