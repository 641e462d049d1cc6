/*
Package sqlite provides a SQLite-backed implementation of the Store Gateway.

PURPOSE:
  Implements report.StoreGateway using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  reports:      One row per (owner, month) with lifecycle status
  entries:      Day/category granularity, provenance-tagged
  categories:   Reference data; commits may insert when resolving labels
  special_days: Read-only calendar data

INDEXES:
  - idx_reports_owner_month:  Lazy get-or-create lookup (hot path)
  - idx_entries_report_date:  Per-date overwrite in the sync engine
  - idx_entries_provenance:   Provenance-matched removal

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  gw, err := sqlite.New("./data/timesheet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer gw.Close()

SEE ALSO:
  - report/store.go: Interface definition
  - report/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/report"
)

// Gateway implements report.StoreGateway on SQLite.
type Gateway struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Gateway, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	g := &Gateway{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return g, nil
}

func (g *Gateway) Close() error { return g.db.Close() }

func (g *Gateway) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		month      TEXT NOT NULL,
		status     TEXT NOT NULL,
		submitted  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (owner_id, month)
	);
	CREATE INDEX IF NOT EXISTS idx_reports_owner_month ON reports(owner_id, month);

	CREATE TABLE IF NOT EXISTS entries (
		id          TEXT PRIMARY KEY,
		report_id   TEXT NOT NULL REFERENCES reports(id),
		date        TEXT NOT NULL,
		category_id TEXT NOT NULL,
		value       TEXT NOT NULL,
		comment     TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'manual',
		source_id   TEXT NOT NULL DEFAULT '',
		source_note TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_entries_report_date ON entries(report_id, date);
	CREATE INDEX IF NOT EXISTS idx_entries_provenance ON entries(source_type, source_id);

	CREATE TABLE IF NOT EXISTS categories (
		id     TEXT PRIMARY KEY,
		label  TEXT NOT NULL,
		kind   TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS special_days (
		id      TEXT PRIMARY KEY,
		date    TEXT NOT NULL,
		type    TEXT NOT NULL,
		scope   TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_special_days_date ON special_days(date);
	`
	_, err := g.db.Exec(schema)
	return err
}

// =============================================================================
// REPORTS
// =============================================================================

func (g *Gateway) ListReports(ctx context.Context, f report.ReportFilter) ([]report.Report, error) {
	q := `SELECT id, owner_id, month, status, submitted, created_at, updated_at FROM reports WHERE 1=1`
	var args []any
	if f.OwnerID != "" {
		q += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Month != nil {
		q += ` AND month = ?`
		args = append(args, f.Month.String())
	}
	q += ` ORDER BY month, owner_id`

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (g *Gateway) GetReport(ctx context.Context, id report.ReportID) (*report.Report, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT id, owner_id, month, status, submitted, created_at, updated_at FROM reports WHERE id = ?`, string(id))
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (g *Gateway) CreateReport(ctx context.Context, r report.Report) (*report.Report, error) {
	if r.ID == "" {
		r.ID = report.ReportID(uuid.NewString())
	}
	if r.Status == "" {
		r.Status = report.StatusDraft
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := g.db.ExecContext(ctx,
		`INSERT INTO reports (id, owner_id, month, status, submitted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), r.OwnerID, r.Month.String(), string(r.Status), boolInt(r.Submitted),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	return &r, nil
}

func (g *Gateway) UpdateReport(ctx context.Context, id report.ReportID, u report.ReportUpdate) (*report.Report, error) {
	q := `UPDATE reports SET updated_at = ?`
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if u.Status != nil {
		q += `, status = ?`
		args = append(args, string(*u.Status))
	}
	if u.Submitted != nil {
		q += `, submitted = ?`
		args = append(args, boolInt(*u.Submitted))
	}
	q += ` WHERE id = ?`
	args = append(args, string(id))

	res, err := g.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, report.ErrNotFound
	}
	return g.GetReport(ctx, id)
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `id, report_id, date, category_id, value, comment, source_type, source_id, source_note`

func (g *Gateway) ListEntries(ctx context.Context, f report.EntryFilter) ([]report.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM entries WHERE 1=1`
	var args []any
	if f.ReportID != "" {
		q += ` AND report_id = ?`
		args = append(args, string(f.ReportID))
	}
	if f.Date != nil {
		q += ` AND date = ?`
		args = append(args, f.Date.String())
	}
	if f.CategoryID != "" {
		q += ` AND category_id = ?`
		args = append(args, string(f.CategoryID))
	}
	q += ` ORDER BY date, category_id`

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []report.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (g *Gateway) CreateEntry(ctx context.Context, e report.Entry) (*report.Entry, error) {
	if e.ID == "" {
		e.ID = report.EntryID(uuid.NewString())
	}
	if e.SourceType == "" {
		e.SourceType = report.SourceManual
	}
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.ReportID), e.Date.String(), string(e.CategoryID), e.Value.String(),
		e.Comment, string(e.SourceType), e.SourceID, e.SourceNote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	return &e, nil
}

func (g *Gateway) UpdateEntry(ctx context.Context, id report.EntryID, u report.EntryUpdate) (*report.Entry, error) {
	q := `UPDATE entries SET id = id`
	var args []any
	if u.Value != nil {
		q += `, value = ?`
		args = append(args, u.Value.String())
	}
	if u.Comment != nil {
		q += `, comment = ?`
		args = append(args, *u.Comment)
	}
	if u.SourceType != nil {
		q += `, source_type = ?`
		args = append(args, string(*u.SourceType))
	}
	if u.SourceID != nil {
		q += `, source_id = ?`
		args = append(args, *u.SourceID)
	}
	if u.SourceNote != nil {
		q += `, source_note = ?`
		args = append(args, *u.SourceNote)
	}
	q += ` WHERE id = ?`
	args = append(args, string(id))

	res, err := g.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, report.ErrNotFound
	}

	row := g.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, string(id))
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (g *Gateway) DeleteEntry(ctx context.Context, id report.EntryID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return report.ErrNotFound
	}
	return nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (g *Gateway) ListCategories(ctx context.Context) ([]report.Category, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id, label, kind, active FROM categories ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []report.Category
	for rows.Next() {
		var c report.Category
		var active int
		if err := rows.Scan(&c.ID, &c.Label, &c.Kind, &active); err != nil {
			return nil, err
		}
		c.Active = active != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (g *Gateway) CreateCategory(ctx context.Context, c report.Category) (*report.Category, error) {
	if c.ID == "" {
		c.ID = report.CategoryID(uuid.NewString())
	}
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO categories (id, label, kind, active) VALUES (?, ?, ?, ?)`,
		string(c.ID), c.Label, string(c.Kind), boolInt(c.Active))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	return &c, nil
}

func (g *Gateway) ListSpecialDays(ctx context.Context, f report.SpecialDayFilter) ([]report.SpecialDay, error) {
	q := `SELECT date, type, scope, user_id FROM special_days WHERE 1=1`
	var args []any
	if f.Month != nil {
		q += ` AND date LIKE ?`
		args = append(args, f.Month.String()+"%")
	}
	if f.OwnerID != "" {
		q += ` AND (scope = 'global' OR user_id = ?)`
		args = append(args, f.OwnerID)
	}
	q += ` ORDER BY date`

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []report.SpecialDay
	for rows.Next() {
		var d report.SpecialDay
		var date string
		if err := rows.Scan(&date, &d.Type, &d.Scope, &d.UserID); err != nil {
			return nil, err
		}
		if d.Date, err = report.ParseDay(date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddSpecialDay seeds calendar data. Administration screens for special
// days live outside this system; this is the write path they consume.
func (g *Gateway) AddSpecialDay(ctx context.Context, d report.SpecialDay) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO special_days (id, date, type, scope, user_id) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), d.Date.String(), string(d.Type), string(d.Scope), d.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", report.ErrStoreUnavailable, err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*report.Report, error) {
	var r report.Report
	var month, createdAt, updatedAt string
	var submitted int
	if err := row.Scan(&r.ID, &r.OwnerID, &month, &r.Status, &submitted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m, err := report.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	r.Month = m
	r.Submitted = submitted != 0
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q on report %s: %w", createdAt, r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("corrupt updated_at %q on report %s: %w", updatedAt, r.ID, err)
	}
	return &r, nil
}

func scanEntry(row rowScanner) (*report.Entry, error) {
	var e report.Entry
	var date, value string
	if err := row.Scan(&e.ID, &e.ReportID, &date, &e.CategoryID, &value,
		&e.Comment, &e.SourceType, &e.SourceID, &e.SourceNote); err != nil {
		return nil, err
	}
	var err error
	if e.Date, err = report.ParseDay(date); err != nil {
		return nil, err
	}
	if e.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("corrupt value %q on entry %s: %w", value, e.ID, err)
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
