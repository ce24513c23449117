package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// sqlite keeps timestamps as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var migrations = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			reporter_id UUID NOT NULL,
			description TEXT NOT NULL,
			photo_ref TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			history JSONB NOT NULL,
			search_text TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports (status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_reporter_created ON reports (reporter_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_updated ON reports (updated_at DESC)`,
		`ALTER TABLE reports ADD COLUMN IF NOT EXISTS search_text TEXT NOT NULL DEFAULT ''`,
		`UPDATE reports SET search_text = LOWER(description || E'\n' || address) WHERE search_text = ''`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			reporter_id TEXT NOT NULL,
			description TEXT NOT NULL,
			photo_ref TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			history TEXT NOT NULL,
			search_text TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports (status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_reporter_created ON reports (reporter_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_updated ON reports (updated_at DESC)`,
	},
}

const reportColumns = `id, reporter_id, description, photo_ref, latitude, longitude, address,
	status, history, version, created_at, updated_at`

// ReportRepository stores report aggregates in a single SQL table with the
// history ledger embedded as JSON, so each write touches exactly one row.
type ReportRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewReportRepository(db *sql.DB, dialect Dialect) *ReportRepository {
	return &ReportRepository{db: db, dialect: dialect}
}

// OpenPostgres connects with lib/pq, retrying the initial ping while the database starts.
func OpenPostgres(ctx context.Context, dsn string) (*ReportRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewReportRepository(db, DialectPostgres), nil
}

// OpenSQLite opens a sqlite database file, or an in-memory one for a "file:...?mode=memory" path.
func OpenSQLite(path string) (*ReportRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return NewReportRepository(db, DialectSQLite), nil
}

func (r *ReportRepository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations[r.dialect] {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate reports: %w", err)
		}
	}
	return nil
}

func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	history, err := json.Marshal(report.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	query := `INSERT INTO reports (` + reportColumns + `, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID,
		report.ReporterID,
		report.Description,
		report.PhotoRef,
		report.Location.Latitude,
		report.Location.Longitude,
		report.Address,
		string(report.Status),
		string(history),
		report.Version,
		r.timeArg(report.CreatedAt),
		r.timeArg(report.UpdatedAt),
		searchText(report.Description, report.Address),
	)
	return apperror.Storage("create report", err)
}

func (r *ReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`
	report, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("report", err)
		}
		return nil, apperror.Storage("find report", err)
	}
	return report, nil
}

func (r *ReportRepository) Replace(ctx context.Context, report *model.Report, expectedVersion int64) error {
	history, err := json.Marshal(report.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	query := `UPDATE reports SET status = ?, history = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(report.Status),
		string(history),
		report.Version,
		r.timeArg(report.UpdatedAt),
		report.ID,
		expectedVersion,
	)
	if err != nil {
		return apperror.Storage("update report", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("update report", err)
	}
	if rowsAffected == 0 {
		return r.missOrConflict(ctx, report.ID)
	}
	return nil
}

func (r *ReportRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM reports WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("report", err)
	}
	if err != nil {
		return apperror.Storage("update report", err)
	}
	return apperror.Conflict("report was modified concurrently")
}

func (r *ReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM reports WHERE id = ?`), id)
	if err != nil {
		return apperror.Storage("delete report", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("delete report", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("report", nil)
	}
	return nil
}

// Find appends one condition per filter field, then pages with LIMIT/OFFSET.
func (r *ReportRepository) Find(ctx context.Context, filter ReportFilter) ([]model.Report, int, error) {
	where := " WHERE 1 = 1"
	args := []interface{}{}

	if filter.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.ReporterID != nil {
		where += " AND reporter_id = ?"
		args = append(args, *filter.ReporterID)
	}
	// search_text is folded in Go at insert time; sqlite's LOWER only folds ASCII.
	if filter.Search != "" {
		where += ` AND search_text LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM reports`+where), args...).Scan(&total); err != nil {
		return nil, 0, apperror.Storage("count reports", err)
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where + orderBy(filter.SortField, filter.SortDesc)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, apperror.Storage("list reports", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, apperror.Storage("list reports", err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.Storage("list reports", err)
	}
	return reports, total, nil
}

func (r *ReportRepository) CountByStatus(ctx context.Context) (map[model.ReportStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, apperror.Storage("count reports", err)
	}
	defer rows.Close()

	counts := zeroCounts()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperror.Storage("count reports", err)
		}
		counts[model.ReportStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Storage("count reports", err)
	}
	return counts, nil
}

func (r *ReportRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ReportRepository) Close() error {
	return r.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (r *ReportRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *ReportRepository) timeArg(t time.Time) interface{} {
	if r.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func orderBy(field SortField, desc bool) string {
	column := "created_at"
	switch field {
	case SortUpdatedAt:
		column = "updated_at"
	case SortStatus:
		column = "status"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return " ORDER BY " + column + " " + dir + ", id ASC"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	report := &model.Report{}
	var history []byte
	err := row.Scan(
		&report.ID,
		&report.ReporterID,
		&report.Description,
		&report.PhotoRef,
		&report.Location.Latitude,
		&report.Location.Longitude,
		&report.Address,
		&report.Status,
		&history,
		&report.Version,
		dbTime{&report.CreatedAt},
		dbTime{&report.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &report.History); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", report.ID, err)
	}
	return report, nil
}

// dbTime scans TIMESTAMPTZ values from postgres and text timestamps from sqlite.
type dbTime struct {
	t *time.Time
}

func (d dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d.t = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (d dbTime) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	*d.t = t.UTC()
	return nil
}
