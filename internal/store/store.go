// Package store persists scan state in SQLite: runs, per-region progress,
// findings, LLM advice and the synced rule catalog.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a scan, region or advice row does not exist.
var ErrNotFound = errors.New("not found")

// FindingFilter narrows ListFindings. Empty fields match everything.
type FindingFilter struct {
	Service  string
	Severity string
}

// CatalogRow is a rule as persisted in rule_catalog.
type CatalogRow struct {
	RuleID          string             `json:"rule_id"`
	Service         string             `json:"service"`
	Title           string             `json:"title"`
	SeverityDefault string             `json:"severity_default"`
	Docs            []models.Reference `json:"docs"`
}

// Store is the scan state store used by the engine. Reads and single-row
// writes go straight to the database; multi-row region transitions go
// through a Tx.
type Store interface {
	// CreateScan inserts run and one PENDING region row per region in a
	// single transaction.
	CreateScan(ctx context.Context, run models.ScanRun, regions []string) error

	// EnsureRegions inserts a PENDING row for every region the scan does not
	// have yet. Existing rows are left untouched.
	EnsureRegions(ctx context.Context, scanID string, regions []string) error

	GetRun(ctx context.Context, scanID string) (*models.ScanRun, error)
	ListRegions(ctx context.Context, scanID string) ([]models.ScanRegion, error)
	ListFindings(ctx context.Context, scanID string, filter FindingFilter) ([]models.Finding, error)

	SetRunStatus(ctx context.Context, scanID string, status models.RunStatus) error

	// FailOpenRegions marks every non-terminal region of the scan FAILED
	// with msg.
	FailOpenRegions(ctx context.Context, scanID, msg string, at time.Time) error

	// RegionCounts returns the number of regions per status.
	RegionCounts(ctx context.Context, scanID string) (map[models.RegionStatus]int, error)

	BeginTx(ctx context.Context) (Tx, error)

	SaveAdvice(ctx context.Context, advice models.Advice) error
	GetAdvice(ctx context.Context, findingID string) (*models.Advice, error)

	SyncRuleCatalog(ctx context.Context, rules []models.Rule) error
	ListRuleCatalog(ctx context.Context, service string) ([]CatalogRow, error)

	Close() error
}

// Tx is one region transition. Callers must end it with Commit or Rollback.
type Tx interface {
	// MarkRunRunning moves the run from PENDING to RUNNING. It is a no-op
	// for a run in any other status.
	MarkRunRunning(ctx context.Context, scanID string) error
	MarkRegionRunning(ctx context.Context, scanID, region string, at time.Time) error
	InsertFindings(ctx context.Context, findings []models.Finding) error
	CompleteRegion(ctx context.Context, scanID, region string, at time.Time) error
	FailRegion(ctx context.Context, scanID, region, msg string, at time.Time) error
	Commit() error
	Rollback() error
}

// SQLStore is the SQLite implementation of Store.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// Open creates or opens a SQLite database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - a single connection, so region transactions serialize in the pool
//     instead of failing with SQLITE_BUSY
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// New wraps an already configured *sql.DB. The schema is not applied.
func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// BeginTx starts a region transaction.
func (s *SQLStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}
