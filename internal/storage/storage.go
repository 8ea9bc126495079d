package storage

import (
	"bytes"
	"compress/zlib"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/raphi011/testops/internal/model"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var fs embed.FS

// SQLite persists runs and their results.
type SQLite struct {
	db  *sqlx.DB
	log *slog.Logger
}

// New opens the database at dbFilename, an empty filename creates a private
// in-memory database.
func New(dbFilename string, log *slog.Logger) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite", connectionString(dbFilename))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	row := db.QueryRow("select sqlite_version()")

	var version string
	err = row.Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve sqlite version: %w", err)
	}

	log.Info("Using sqlite version: " + version)

	s := &SQLite{
		db:  db,
		log: log,
	}

	if err = s.migrateDB(db); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func connectionString(filename string) string {
	var cs string
	var options = []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)", "_pragma=synchronous(normal)"}

	if filename != "" {
		cs = filename
	} else {
		cs = "file:" + randomAlphanumeric(16)
		options = append(options, "mode=memory", "cache=shared")
	}

	for i, o := range options {
		if i == 0 {
			cs += "?"
		} else {
			cs += "&"
		}
		cs += o
	}

	return cs
}

const alphaNumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphaNumericChars[rand.Intn(len(alphaNumericChars))]
	}
	return string(b)
}

func (s *SQLite) migrateDB(db *sqlx.DB) error {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("load db migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("load migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate with instance: %w", err)
	}

	err = m.Up()

	if err == migrate.ErrNoChange {
		s.log.Info("No migrations have been applied. The DB is at the latest state.")
	} else if err != nil {
		return fmt.Errorf("applying db migrations: %w", err)
	}

	return nil
}

type storageContextKey string

func (s *SQLite) StartTransaction(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ctx, err
	}

	return context.WithValue(ctx, storageContextKey("storage.transaction"), tx), nil
}

func (s *SQLite) CommitTransaction(ctx context.Context) error {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v == nil {
		return errors.New("context does not contain a transaction")
	}

	return v.(*sqlx.Tx).Commit()
}

func (s *SQLite) RollbackTransaction(ctx context.Context) {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v != nil {
		err := v.(*sqlx.Tx).Rollback()
		if err != nil && err != sql.ErrTxDone {
			s.log.Warn("could not rollback transaction", "error", err)
		}
	}
}

func (s *SQLite) getDB(ctx context.Context) commonDB {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v == nil {
		return s.db
	}

	return v.(*sqlx.Tx)
}

// functions shared by `*sqlx.Tx` and `*sqlx.Db`
type commonDB interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

func (s *SQLite) InsertRun(ctx context.Context, run model.Run) error {
	db := s.getDB(ctx)

	_, err := db.NamedExecContext(ctx, `INSERT INTO Run
	(id, thread, startTime, endTime) VALUES
	(:id, :thread, :startTime, :endTime)`,
		map[string]any{
			"id":        run.ID,
			"thread":    run.Thread,
			"startTime": timeFormat(run.Start),
			"endTime":   timeFormat(run.End),
		})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	return nil
}

// CompleteRun sets the end time of a run.
func (s *SQLite) CompleteRun(ctx context.Context, runID string, end time.Time) error {
	db := s.getDB(ctx)

	r, err := db.NamedExecContext(ctx, `UPDATE Run SET endTime=:endTime WHERE id=:id`,
		map[string]any{
			"id":      runID,
			"endTime": timeFormat(end),
		})
	if err != nil {
		return fmt.Errorf("update statement failed: %w", err)
	}

	if affected, _ := r.RowsAffected(); affected != 1 {
		return model.NotFoundError{}
	}

	return nil
}

func (s *SQLite) LoadRun(ctx context.Context, runID string) (model.Run, error) {
	db := s.getDB(ctx)

	r, err := db.NamedQuery(`SELECT id, thread, startTime, endTime FROM Run WHERE id = :id`,
		map[string]any{"id": runID})
	if err != nil {
		return model.Run{}, err
	}
	defer r.Close()

	if !r.Next() {
		return model.Run{}, model.NotFoundError{}
	}

	run, err := scanRun(r)
	if err != nil {
		return model.Run{}, err
	}

	// the result rows can only be read once the run rows are closed
	r.Close()

	run.Results, err = s.LoadResults(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}

	return run, nil
}

// LoadRuns returns all runs without their results, newest first.
func (s *SQLite) LoadRuns(ctx context.Context) ([]model.Run, error) {
	db := s.getDB(ctx)

	runs := []model.Run{}
	r, err := db.QueryxContext(ctx, `SELECT id, thread, startTime, endTime FROM Run ORDER BY startTime DESC`)
	if err != nil {
		return runs, err
	}
	defer r.Close()

	for r.Next() {
		run, err := scanRun(r)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// DeleteRunsBefore deletes all runs, including their results, that started
// before t and returns the number of deleted runs.
func (s *SQLite) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	db := s.getDB(ctx)

	params := map[string]any{"startTime": timeFormat(t)}

	if _, err := db.NamedExecContext(ctx, `DELETE FROM Result WHERE runId IN
	(SELECT id FROM Run WHERE startTime < :startTime)`, params); err != nil {
		return 0, fmt.Errorf("deleting results: %w", err)
	}

	r, err := db.NamedExecContext(ctx, `DELETE FROM Run WHERE startTime < :startTime`, params)
	if err != nil {
		return 0, fmt.Errorf("deleting runs: %w", err)
	}

	return r.RowsAffected()
}

func (s *SQLite) InsertResult(ctx context.Context, runID string, res model.Result) error {
	suites, err := json.Marshal(res.Suites)
	if err != nil {
		return fmt.Errorf("unable to marshal suites: %w", err)
	}

	fields, err := json.Marshal(res.Fields)
	if err != nil {
		return fmt.Errorf("unable to marshal fields: %w", err)
	}

	params, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("unable to marshal params: %w", err)
	}

	message, err := compress(res.Execution.Message)
	if err != nil {
		return fmt.Errorf("unable to compress message: %w", err)
	}

	stackTrace, err := compress(res.Execution.StackTrace)
	if err != nil {
		return fmt.Errorf("unable to compress stack trace: %w", err)
	}

	var testOpsID sql.NullInt64
	if res.TestOpsID != nil {
		testOpsID = sql.NullInt64{Int64: *res.TestOpsID, Valid: true}
	}

	db := s.getDB(ctx)
	_, err = db.NamedExecContext(ctx, `INSERT INTO Result
	(runId, signature, testOpsId, title, suites, fields, params, status, thread, compressedMessage, compressedStackTrace, startTime, endTime, durationInMs) VALUES
	(:runId, :signature, :testOpsId, :title, :suites, :fields, :params, :status, :thread, :message, :stackTrace, :startTime, :endTime, :durationInMs)`,
		map[string]any{
			"runId":        runID,
			"signature":    res.Signature,
			"testOpsId":    testOpsID,
			"title":        res.Title,
			"suites":       string(suites),
			"fields":       string(fields),
			"params":       string(params),
			"status":       res.Execution.Status,
			"thread":       res.Execution.Thread,
			"message":      message,
			"stackTrace":   stackTrace,
			"startTime":    timeFormat(res.Execution.StartTime),
			"endTime":      timeFormat(res.Execution.EndTime),
			"durationInMs": res.Execution.DurationInMS,
		})
	if err != nil {
		return fmt.Errorf("inserting result %s: %w", res.Signature, err)
	}

	return nil
}

func (s *SQLite) LoadResults(ctx context.Context, runID string) ([]model.Result, error) {
	db := s.getDB(ctx)

	results := []model.Result{}
	r, err := db.NamedQuery(`SELECT
		runId, signature, testOpsId, title, suites, fields, params, status, thread, compressedMessage, compressedStackTrace, startTime, endTime, durationInMs
		FROM Result WHERE runId=:runId ORDER BY id`,
		map[string]any{"runId": runID},
	)
	if err != nil {
		return results, err
	}
	defer r.Close()

	for r.Next() {
		res, err := scanResult(r)
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	return results, nil
}

// timeLayout has a fixed width so stored times sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeFormat(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseDate(t string) (time.Time, error) {
	return time.Parse(timeLayout, t)
}

func scanRun(r *sqlx.Rows) (model.Run, error) {
	run := model.Run{}

	var start, end string

	if err := r.Scan(&run.ID, &run.Thread, &start, &end); err != nil {
		return model.Run{}, fmt.Errorf("scanning run: %w", err)
	}

	var err error

	if run.Start, err = parseDate(start); err != nil {
		return model.Run{}, fmt.Errorf("parsing start time: %w", err)
	}
	if run.End, err = parseDate(end); err != nil {
		return model.Run{}, fmt.Errorf("parsing end time: %w", err)
	}

	return run, nil
}

func scanResult(r *sqlx.Rows) (model.Result, error) {
	res := model.Result{}

	var start, end, suites, fields, params string
	var message, stackTrace []byte
	var testOpsID sql.NullInt64

	err := r.Scan(
		&res.RunID,
		&res.Signature,
		&testOpsID,
		&res.Title,
		&suites,
		&fields,
		&params,
		&res.Execution.Status,
		&res.Execution.Thread,
		&message,
		&stackTrace,
		&start,
		&end,
		&res.Execution.DurationInMS,
	)
	if err != nil {
		return model.Result{}, fmt.Errorf("scanning result: %w", err)
	}

	if testOpsID.Valid {
		id := testOpsID.Int64
		res.TestOpsID = &id
	}

	if res.Execution.StartTime, err = parseDate(start); err != nil {
		return model.Result{}, fmt.Errorf("parsing start time: %w", err)
	}
	if res.Execution.EndTime, err = parseDate(end); err != nil {
		return model.Result{}, fmt.Errorf("parsing end time: %w", err)
	}
	if err = json.Unmarshal([]byte(suites), &res.Suites); err != nil {
		return model.Result{}, fmt.Errorf("unmarshaling suites: %w", err)
	}
	if err = json.Unmarshal([]byte(fields), &res.Fields); err != nil {
		return model.Result{}, fmt.Errorf("unmarshaling fields: %w", err)
	}
	if err = json.Unmarshal([]byte(params), &res.Params); err != nil {
		return model.Result{}, fmt.Errorf("unmarshaling params: %w", err)
	}

	if res.Execution.Message, err = decompress(message); err != nil {
		return model.Result{}, err
	}
	if res.Execution.StackTrace, err = decompress(stackTrace); err != nil {
		return model.Result{}, err
	}

	return res, nil
}

func compress(text string) ([]byte, error) {
	var compressed bytes.Buffer

	w := zlib.NewWriter(&compressed)

	_, err := w.Write([]byte(text))
	w.Close()

	return compressed.Bytes(), err
}

func decompress(l []byte) (string, error) {
	if len(l) == 0 {
		return "", nil
	}

	reader, err := zlib.NewReader(bytes.NewReader(l))
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	defer reader.Close()

	text, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}

	return string(text), nil
}
