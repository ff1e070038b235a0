package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
)

// Dialect controls which SQL placeholder style the repository emits.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota

	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres

	// DialectMySQL uses ? placeholders.
	DialectMySQL
)

// Column layout is intentionally dialect-neutral: uuids as VARCHAR(36),
// timestamps as RFC 3339 TEXT, and structured payloads (config, test
// result, summary, error list) as JSON TEXT. All three supported engines
// accept this DDL unchanged.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS connections (
		id               VARCHAR(36) PRIMARY KEY,
		config           TEXT NOT NULL,
		created_at       VARCHAR(40) NOT NULL,
		updated_at       VARCHAR(40),
		last_test_result TEXT,
		last_ingested_at VARCHAR(40),
		last_summary     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ingestion_jobs (
		id            VARCHAR(36) PRIMARY KEY,
		connection_id VARCHAR(36) NOT NULL,
		status        VARCHAR(16) NOT NULL,
		created_at    VARCHAR(40) NOT NULL,
		started_at    VARCHAR(40),
		finished_at   VARCHAR(40),
		message       TEXT,
		errors        TEXT NOT NULL,
		summary       TEXT
	)`,
}

// SQL is a Repository backed by database/sql. The same code path serves
// sqlite, postgres, and mysql; only the placeholder style differs.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

var _ Repository = (*SQL)(nil)

// NewSQL wraps an open database handle and creates the schema if absent.
func NewSQL(ctx context.Context, db *sql.DB, d Dialect) (*SQL, error) {
	s := &SQL{db: db, dialect: d}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errs.Wrap(errs.ErrKindStorage, "creating schema", err)
		}
	}
	return s, nil
}

// bind rewrites ? placeholders into the dialect's native style.
// sqlite and mysql take the query as written.
func (s *SQL) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQL) Create(ctx context.Context, cfg domain.ConnectionConfig, testResult *domain.TestResult) (*domain.Connection, error) {
	now := time.Now().UTC()
	conn := &domain.Connection{
		ID:             uuid.New(),
		Config:         cfg,
		CreatedAt:      now,
		UpdatedAt:      &now,
		LastTestResult: testResult,
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "encoding connection config", err)
	}
	testJSON, err := marshalNullable(testResult)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO connections (id, config, created_at, updated_at, last_test_result, last_ingested_at, last_summary)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL)`),
		conn.ID.String(), string(cfgJSON), formatTime(now), formatTime(now), testJSON,
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "inserting connection", err)
	}
	return conn, nil
}

const connectionColumns = `id, config, created_at, updated_at, last_test_result, last_ingested_at, last_summary`

func (s *SQL) List(ctx context.Context) ([]*domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT `+connectionColumns+` FROM connections ORDER BY created_at`))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "listing connections", err)
	}
	defer rows.Close()

	var out []*domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "listing connections", err)
	}
	return out, nil
}

func (s *SQL) Get(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	row := s.db.QueryRowContext(ctx, s.bind(
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`), id.String())

	conn, err := scanConnection(row)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.New(errs.ErrKindNotFound, "connection not found")
		}
		return nil, err
	}
	return conn, nil
}

func (s *SQL) CreateJob(ctx context.Context, connectionID uuid.UUID) (*domain.Job, error) {
	if _, err := s.Get(ctx, connectionID); err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		Status:       domain.JobPending,
		CreatedAt:    time.Now().UTC(),
		Errors:       []string{},
	}

	_, err := s.db.ExecContext(ctx, s.bind(
		`INSERT INTO ingestion_jobs (id, connection_id, status, created_at, started_at, finished_at, message, errors, summary)
		 VALUES (?, ?, ?, ?, NULL, NULL, '', '[]', NULL)`),
		job.ID.String(), connectionID.String(), string(job.Status), formatTime(job.CreatedAt),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "inserting job", err)
	}
	return job, nil
}

func (s *SQL) UpdateJob(ctx context.Context, job *domain.Job) error {
	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return errs.Wrap(errs.ErrKindStorage, "encoding job errors", err)
	}
	summaryJSON, err := marshalNullable(job.Summary)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE ingestion_jobs
		 SET status = ?, started_at = ?, finished_at = ?, message = ?, errors = ?, summary = ?
		 WHERE id = ?`),
		string(job.Status), formatTimePtr(job.StartedAt), formatTimePtr(job.FinishedAt),
		job.Message, string(errsJSON), summaryJSON, job.ID.String(),
	)
	if err != nil {
		return errs.Wrap(errs.ErrKindStorage, "updating job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.ErrKindNotFound, "job not found")
	}
	return nil
}

const jobColumns = `id, connection_id, status, created_at, started_at, finished_at, message, errors, summary`

func (s *SQL) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, s.bind(
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = ?`), id.String())

	job, err := scanJob(row)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.New(errs.ErrKindNotFound, "job not found")
		}
		return nil, err
	}
	return job, nil
}

func (s *SQL) ListJobsForConnection(ctx context.Context, connectionID uuid.UUID) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE connection_id = ? ORDER BY created_at`),
		connectionID.String())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "listing jobs", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "listing jobs", err)
	}
	return out, nil
}

func (s *SQL) SetSummary(ctx context.Context, connectionID uuid.UUID, summary *domain.DatasetSummary, ts time.Time) error {
	summaryJSON, err := marshalNullable(summary)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE connections SET last_summary = ?, last_ingested_at = ?, updated_at = ? WHERE id = ?`),
		summaryJSON, formatTime(ts), formatTime(ts), connectionID.String(),
	)
	if err != nil {
		return errs.Wrap(errs.ErrKindStorage, "storing summary", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.ErrKindNotFound, "connection not found")
	}
	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	for _, table := range []string{"ingestion_jobs", "connections"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return errs.Wrap(errs.ErrKindStorage, "clearing "+table, err)
		}
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// --- row scanning ---

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(sc scanner) (*domain.Connection, error) {
	var (
		id, cfgJSON, createdAt  string
		updatedAt, testJSON     sql.NullString
		ingestedAt, summaryJSON sql.NullString
	)
	if err := sc.Scan(&id, &cfgJSON, &createdAt, &updatedAt, &testJSON, &ingestedAt, &summaryJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.ErrKindNotFound, "row not found")
		}
		return nil, errs.Wrap(errs.ErrKindStorage, "scanning connection", err)
	}

	conn := &domain.Connection{}
	var err error
	if conn.ID, err = uuid.Parse(id); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "parsing connection id", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &conn.Config); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "decoding connection config", err)
	}
	if conn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conn.UpdatedAt, err = parseTimePtr(updatedAt); err != nil {
		return nil, err
	}
	if conn.LastIngestedAt, err = parseTimePtr(ingestedAt); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(testJSON, &conn.LastTestResult); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(summaryJSON, &conn.LastSummary); err != nil {
		return nil, err
	}
	return conn, nil
}

func scanJob(sc scanner) (*domain.Job, error) {
	var (
		id, connID, status, createdAt string
		startedAt, finishedAt         sql.NullString
		message                       sql.NullString
		errsJSON                      string
		summaryJSON                   sql.NullString
	)
	if err := sc.Scan(&id, &connID, &status, &createdAt, &startedAt, &finishedAt, &message, &errsJSON, &summaryJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.ErrKindNotFound, "row not found")
		}
		return nil, errs.Wrap(errs.ErrKindStorage, "scanning job", err)
	}

	job := &domain.Job{Status: domain.JobStatus(status), Message: message.String}
	var err error
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "parsing job id", err)
	}
	if job.ConnectionID, err = uuid.Parse(connID); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "parsing job connection id", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errsJSON), &job.Errors); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "decoding job errors", err)
	}
	if job.Errors == nil {
		job.Errors = []string{}
	}
	if err := unmarshalNullable(summaryJSON, &job.Summary); err != nil {
		return nil, err
	}
	return job, nil
}

// --- column codecs ---

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "encoding column payload", err)
	}
	return string(b), nil
}

func unmarshalNullable[T any](col sql.NullString, dst **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(col.String), v); err != nil {
		return errs.Wrap(errs.ErrKindStorage, "decoding column payload", err)
	}
	*dst = v
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrKindStorage, "parsing stored timestamp", err)
	}
	return t, nil
}

func parseTimePtr(col sql.NullString) (*time.Time, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	t, err := parseTime(col.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
