package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/goliatone/go-errors"
	_ "github.com/mattn/go-sqlite3"

	process "github.com/goliatone/go-process"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS executions (
	id                      TEXT PRIMARY KEY,
	parent_id               TEXT NOT NULL DEFAULT '',
	process_instance_id     TEXT NOT NULL,
	process_definition_id   TEXT NOT NULL,
	super_execution_id      TEXT NOT NULL DEFAULT '',
	sub_process_instance_id TEXT NOT NULL DEFAULT '',
	activity_id             TEXT NOT NULL DEFAULT '',
	role                    TEXT NOT NULL,
	is_concurrent           INTEGER NOT NULL DEFAULT 0,
	is_active               INTEGER NOT NULL DEFAULT 0,
	is_scope                INTEGER NOT NULL DEFAULT 0,
	revision                INTEGER NOT NULL DEFAULT 0,
	created_at              INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_executions_instance ON executions(process_instance_id);
CREATE INDEX IF NOT EXISTS idx_executions_parent   ON executions(parent_id);

CREATE TABLE IF NOT EXISTS jobs (
	id                    TEXT PRIMARY KEY,
	execution_id          TEXT NOT NULL DEFAULT '',
	process_instance_id   TEXT NOT NULL DEFAULT '',
	process_definition_id TEXT NOT NULL DEFAULT '',
	handler_type          TEXT NOT NULL,
	handler_config        TEXT NOT NULL DEFAULT '',
	retries               INTEGER NOT NULL DEFAULT 0,
	attempts              INTEGER NOT NULL DEFAULT 0,
	priority              INTEGER NOT NULL DEFAULT 0,
	due_date              INTEGER NOT NULL DEFAULT 0,
	lock_owner            TEXT NOT NULL DEFAULT '',
	lock_expiration       INTEGER NOT NULL DEFAULT 0,
	exception_message     TEXT NOT NULL DEFAULT '',
	exception_stacktrace  TEXT NOT NULL DEFAULT '',
	revision              INTEGER NOT NULL DEFAULT 0,
	created_at            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_instance ON jobs(process_instance_id);
CREATE INDEX IF NOT EXISTS idx_jobs_due      ON jobs(due_date, priority);

CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	execution_id        TEXT NOT NULL,
	process_instance_id TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	assignee            TEXT NOT NULL DEFAULT '',
	revision            INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_instance ON tasks(process_instance_id);

CREATE TABLE IF NOT EXISTS variables (
	id                  TEXT PRIMARY KEY,
	execution_id        TEXT NOT NULL,
	process_instance_id TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL,
	value               TEXT NOT NULL DEFAULT 'null',
	revision            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_variables_execution ON variables(execution_id);
`

// SQLiteStore is a durable EntityStore on sqlite. Each session is one
// database transaction; writes guard on the revision column, so a row that
// moved since it was read fails the write with a conflict and the
// transaction applies nothing.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a sqlite database at path and ensures the
// schema. Use ":memory:" with a shared cache DSN for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, process.FatalError(err, "open sqlite database")
	}
	// sqlite serializes writers; one connection keeps tx semantics simple
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, process.FatalError(err, "apply sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin opens a unit-of-work session backed by one transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (process.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, process.FatalError(err, "begin sqlite transaction")
	}
	return &sqliteSession{
		tx:        tx,
		execs:     make(map[string]*process.Execution),
		jobs:      make(map[string]*process.Job),
		tasks:     make(map[string]*process.Task),
		variables: make(map[string]*process.Variable),
	}, nil
}

// sqliteSession caches loaded entities so repeated finds inside one command
// observe the command's own in-flight mutations, matching the in-memory
// session contract.
type sqliteSession struct {
	tx     *sql.Tx
	closed bool

	execs     map[string]*process.Execution
	jobs      map[string]*process.Job
	tasks     map[string]*process.Task
	variables map[string]*process.Variable
}

func nsToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func timeToNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// guardWrite turns a zero-rows-affected CAS write into a conflict.
func guardWrite(res sql.Result, kind, id string, expected int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return process.FatalError(err, "read affected rows")
	}
	if n == 0 {
		return process.ConflictError(kind, id, expected, -1)
	}
	return nil
}

// --- executions ---

const executionColumns = `id, parent_id, process_instance_id, process_definition_id,
	super_execution_id, sub_process_instance_id, activity_id, role,
	is_concurrent, is_active, is_scope, revision, created_at`

func (s *sqliteSession) scanExecution(scan func(...any) error) (*process.Execution, error) {
	var e process.Execution
	var role string
	var concurrent, active, scope int
	var created int64
	err := scan(&e.ID, &e.ParentID, &e.ProcessInstanceID, &e.ProcessDefinitionID,
		&e.SuperExecutionID, &e.SubProcessInstanceID, &e.ActivityID, &role,
		&concurrent, &active, &scope, &e.Revision, &created)
	if err != nil {
		return nil, err
	}
	e.Role = process.ExecutionRole(role)
	e.IsConcurrent = concurrent != 0
	e.IsActive = active != 0
	e.IsScope = scope != 0
	e.CreatedAt = nsToTime(created)
	return &e, nil
}

func (s *sqliteSession) FindExecution(ctx context.Context, id string) (*process.Execution, error) {
	if e, ok := s.execs[id]; ok {
		if e == nil {
			return nil, process.NotFoundError("execution", process.ErrCodeExecutionNotFound, id)
		}
		return e, nil
	}
	row := s.tx.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := s.scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, process.NotFoundError("execution", process.ErrCodeExecutionNotFound, id)
	}
	if err != nil {
		return nil, process.FatalError(err, "query execution")
	}
	s.execs[id] = e
	return e, nil
}

func (s *sqliteSession) queryExecutions(ctx context.Context, where string, args ...any) ([]*process.Execution, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, process.FatalError(err, "query executions")
	}
	defer rows.Close()
	var out []*process.Execution
	for rows.Next() {
		e, err := s.scanExecution(rows.Scan)
		if err != nil {
			return nil, process.FatalError(err, "scan execution")
		}
		if cached, ok := s.execs[e.ID]; ok {
			if cached == nil {
				continue
			}
			out = append(out, cached)
			continue
		}
		s.execs[e.ID] = e
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteSession) FindExecutionsByInstance(ctx context.Context, instanceID string) ([]*process.Execution, error) {
	return s.queryExecutions(ctx, `process_instance_id = ?`, instanceID)
}

func (s *sqliteSession) FindChildExecutions(ctx context.Context, parentID string) ([]*process.Execution, error) {
	return s.queryExecutions(ctx, `parent_id = ?`, parentID)
}

func (s *sqliteSession) InsertExecution(ctx context.Context, e *process.Execution) error {
	e.Revision = 1
	_, err := s.tx.ExecContext(ctx, `INSERT INTO executions (`+executionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ParentID, e.ProcessInstanceID, e.ProcessDefinitionID,
		e.SuperExecutionID, e.SubProcessInstanceID, e.ActivityID, string(e.Role),
		boolToInt(e.IsConcurrent), boolToInt(e.IsActive), boolToInt(e.IsScope), e.Revision, timeToNs(e.CreatedAt))
	if err != nil {
		return process.FatalError(err, "insert execution")
	}
	s.execs[e.ID] = e
	return nil
}

func (s *sqliteSession) UpdateExecution(ctx context.Context, e *process.Execution) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE executions SET
		parent_id = ?, process_instance_id = ?, process_definition_id = ?,
		super_execution_id = ?, sub_process_instance_id = ?, activity_id = ?, role = ?,
		is_concurrent = ?, is_active = ?, is_scope = ?, revision = revision + 1
		WHERE id = ? AND revision = ?`,
		e.ParentID, e.ProcessInstanceID, e.ProcessDefinitionID,
		e.SuperExecutionID, e.SubProcessInstanceID, e.ActivityID, string(e.Role),
		boolToInt(e.IsConcurrent), boolToInt(e.IsActive), boolToInt(e.IsScope),
		e.ID, e.Revision)
	if err != nil {
		return process.FatalError(err, "update execution")
	}
	if err := guardWrite(res, "execution", e.ID, e.Revision); err != nil {
		return err
	}
	e.Revision++
	s.execs[e.ID] = e
	return nil
}

func (s *sqliteSession) DeleteExecution(ctx context.Context, id string) error {
	e, err := s.FindExecution(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.tx.ExecContext(ctx, `DELETE FROM executions WHERE id = ? AND revision = ?`, id, e.Revision)
	if err != nil {
		return process.FatalError(err, "delete execution")
	}
	if err := guardWrite(res, "execution", id, e.Revision); err != nil {
		return err
	}
	s.execs[id] = nil
	return nil
}

// --- jobs ---

const jobColumns = `id, execution_id, process_instance_id, process_definition_id,
	handler_type, handler_config, retries, attempts, priority, due_date,
	lock_owner, lock_expiration, exception_message, exception_stacktrace,
	revision, created_at`

func (s *sqliteSession) scanJob(scan func(...any) error) (*process.Job, error) {
	var j process.Job
	var due, lockExp, created int64
	err := scan(&j.ID, &j.ExecutionID, &j.ProcessInstanceID, &j.ProcessDefinitionID,
		&j.HandlerType, &j.HandlerConfig, &j.Retries, &j.Attempts, &j.Priority, &due,
		&j.LockOwner, &lockExp, &j.ExceptionMessage, &j.ExceptionStacktrace,
		&j.Revision, &created)
	if err != nil {
		return nil, err
	}
	j.DueDate = nsToTime(due)
	j.LockExpiration = nsToTime(lockExp)
	j.CreatedAt = nsToTime(created)
	return &j, nil
}

func (s *sqliteSession) FindJob(ctx context.Context, id string) (*process.Job, error) {
	if j, ok := s.jobs[id]; ok {
		if j == nil {
			return nil, process.NotFoundError("job", process.ErrCodeJobNotFound, id)
		}
		return j, nil
	}
	row := s.tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := s.scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, process.NotFoundError("job", process.ErrCodeJobNotFound, id)
	}
	if err != nil {
		return nil, process.FatalError(err, "query job")
	}
	s.jobs[id] = j
	return j, nil
}

func (s *sqliteSession) queryJobs(ctx context.Context, suffix string, args ...any) ([]*process.Job, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs `+suffix, args...)
	if err != nil {
		return nil, process.FatalError(err, "query jobs")
	}
	defer rows.Close()
	var out []*process.Job
	for rows.Next() {
		j, err := s.scanJob(rows.Scan)
		if err != nil {
			return nil, process.FatalError(err, "scan job")
		}
		if cached, ok := s.jobs[j.ID]; ok {
			if cached == nil {
				continue
			}
			out = append(out, cached)
			continue
		}
		s.jobs[j.ID] = j
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteSession) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*process.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	// Acquirable in SQL: due, retries left, and no unexpired lease
	return s.queryJobs(ctx,
		`WHERE due_date <= ? AND retries > 0 AND lock_expiration <= ?
		 ORDER BY priority DESC, due_date ASC LIMIT ?`,
		now.UnixNano(), now.UnixNano(), limit)
}

func (s *sqliteSession) FindJobsByInstance(ctx context.Context, instanceID string) ([]*process.Job, error) {
	return s.queryJobs(ctx, `WHERE process_instance_id = ? ORDER BY rowid`, instanceID)
}

func (s *sqliteSession) FindExhaustedJobs(ctx context.Context, limit int) ([]*process.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryJobs(ctx, `WHERE retries <= 0 ORDER BY rowid LIMIT ?`, limit)
}

func (s *sqliteSession) InsertJob(ctx context.Context, j *process.Job) error {
	j.Revision = 1
	_, err := s.tx.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ExecutionID, j.ProcessInstanceID, j.ProcessDefinitionID,
		j.HandlerType, j.HandlerConfig, j.Retries, j.Attempts, j.Priority, timeToNs(j.DueDate),
		j.LockOwner, timeToNs(j.LockExpiration), j.ExceptionMessage, j.ExceptionStacktrace,
		j.Revision, timeToNs(j.CreatedAt))
	if err != nil {
		return process.FatalError(err, "insert job")
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *sqliteSession) UpdateJob(ctx context.Context, j *process.Job) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE jobs SET
		execution_id = ?, process_instance_id = ?, process_definition_id = ?,
		handler_type = ?, handler_config = ?, retries = ?, attempts = ?, priority = ?,
		due_date = ?, lock_owner = ?, lock_expiration = ?,
		exception_message = ?, exception_stacktrace = ?, revision = revision + 1
		WHERE id = ? AND revision = ?`,
		j.ExecutionID, j.ProcessInstanceID, j.ProcessDefinitionID,
		j.HandlerType, j.HandlerConfig, j.Retries, j.Attempts, j.Priority,
		timeToNs(j.DueDate), j.LockOwner, timeToNs(j.LockExpiration),
		j.ExceptionMessage, j.ExceptionStacktrace,
		j.ID, j.Revision)
	if err != nil {
		return process.FatalError(err, "update job")
	}
	if err := guardWrite(res, "job", j.ID, j.Revision); err != nil {
		return err
	}
	j.Revision++
	s.jobs[j.ID] = j
	return nil
}

func (s *sqliteSession) DeleteJob(ctx context.Context, id string) error {
	j, err := s.FindJob(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND revision = ?`, id, j.Revision)
	if err != nil {
		return process.FatalError(err, "delete job")
	}
	if err := guardWrite(res, "job", id, j.Revision); err != nil {
		return err
	}
	s.jobs[id] = nil
	return nil
}

// --- tasks ---

const taskColumns = `id, execution_id, process_instance_id, name, assignee, revision, created_at`

func (s *sqliteSession) scanTask(scan func(...any) error) (*process.Task, error) {
	var t process.Task
	var created int64
	err := scan(&t.ID, &t.ExecutionID, &t.ProcessInstanceID, &t.Name, &t.Assignee, &t.Revision, &created)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = nsToTime(created)
	return &t, nil
}

func (s *sqliteSession) FindTask(ctx context.Context, id string) (*process.Task, error) {
	if t, ok := s.tasks[id]; ok {
		if t == nil {
			return nil, process.NotFoundError("task", process.ErrCodeTaskNotFound, id)
		}
		return t, nil
	}
	row := s.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := s.scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, process.NotFoundError("task", process.ErrCodeTaskNotFound, id)
	}
	if err != nil {
		return nil, process.FatalError(err, "query task")
	}
	s.tasks[id] = t
	return t, nil
}

func (s *sqliteSession) FindTasksByInstance(ctx context.Context, instanceID string) ([]*process.Task, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE process_instance_id = ? ORDER BY rowid`, instanceID)
	if err != nil {
		return nil, process.FatalError(err, "query tasks")
	}
	defer rows.Close()
	var out []*process.Task
	for rows.Next() {
		t, err := s.scanTask(rows.Scan)
		if err != nil {
			return nil, process.FatalError(err, "scan task")
		}
		if cached, ok := s.tasks[t.ID]; ok {
			if cached == nil {
				continue
			}
			out = append(out, cached)
			continue
		}
		s.tasks[t.ID] = t
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteSession) InsertTask(ctx context.Context, t *process.Task) error {
	t.Revision = 1
	_, err := s.tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.ExecutionID, t.ProcessInstanceID, t.Name, t.Assignee, t.Revision, timeToNs(t.CreatedAt))
	if err != nil {
		return process.FatalError(err, "insert task")
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *sqliteSession) DeleteTask(ctx context.Context, id string) error {
	t, err := s.FindTask(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND revision = ?`, id, t.Revision)
	if err != nil {
		return process.FatalError(err, "delete task")
	}
	if err := guardWrite(res, "task", id, t.Revision); err != nil {
		return err
	}
	s.tasks[id] = nil
	return nil
}

func (s *sqliteSession) DeleteTasksByInstance(ctx context.Context, instanceID string) error {
	tasks, err := s.FindTasksByInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// --- variables ---

const variableColumns = `id, execution_id, process_instance_id, name, value, revision`

func (s *sqliteSession) scanVariable(scan func(...any) error) (*process.Variable, error) {
	var v process.Variable
	var raw string
	err := scan(&v.ID, &v.ExecutionID, &v.ProcessInstanceID, &v.Name, &raw, &v.Revision)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &v.Value); err != nil {
		return nil, process.FatalError(err, "decode variable value")
	}
	return &v, nil
}

func encodeVariableValue(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryBadInput, "variable value is not serializable")
	}
	return string(raw), nil
}

func (s *sqliteSession) FindVariable(ctx context.Context, executionID, name string) (*process.Variable, error) {
	vars, err := s.FindVariablesByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, nil
}

func (s *sqliteSession) FindVariablesByExecution(ctx context.Context, executionID string) ([]*process.Variable, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+variableColumns+` FROM variables WHERE execution_id = ? ORDER BY rowid`, executionID)
	if err != nil {
		return nil, process.FatalError(err, "query variables")
	}
	defer rows.Close()
	var out []*process.Variable
	for rows.Next() {
		v, err := s.scanVariable(rows.Scan)
		if err != nil {
			return nil, process.FatalError(err, "scan variable")
		}
		if cached, ok := s.variables[v.ID]; ok {
			if cached == nil {
				continue
			}
			out = append(out, cached)
			continue
		}
		s.variables[v.ID] = v
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteSession) InsertVariable(ctx context.Context, v *process.Variable) error {
	raw, err := encodeVariableValue(v.Value)
	if err != nil {
		return err
	}
	v.Revision = 1
	_, err = s.tx.ExecContext(ctx, `INSERT INTO variables (`+variableColumns+`) VALUES (?,?,?,?,?,?)`,
		v.ID, v.ExecutionID, v.ProcessInstanceID, v.Name, raw, v.Revision)
	if err != nil {
		return process.FatalError(err, "insert variable")
	}
	s.variables[v.ID] = v
	return nil
}

func (s *sqliteSession) UpdateVariable(ctx context.Context, v *process.Variable) error {
	raw, err := encodeVariableValue(v.Value)
	if err != nil {
		return err
	}
	res, err := s.tx.ExecContext(ctx, `UPDATE variables SET
		execution_id = ?, process_instance_id = ?, name = ?, value = ?, revision = revision + 1
		WHERE id = ? AND revision = ?`,
		v.ExecutionID, v.ProcessInstanceID, v.Name, raw, v.ID, v.Revision)
	if err != nil {
		return process.FatalError(err, "update variable")
	}
	if err := guardWrite(res, "variable", v.ID, v.Revision); err != nil {
		return err
	}
	v.Revision++
	s.variables[v.ID] = v
	return nil
}

func (s *sqliteSession) DeleteVariablesByExecution(ctx context.Context, executionID string) error {
	vars, err := s.FindVariablesByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	for _, v := range vars {
		res, err := s.tx.ExecContext(ctx, `DELETE FROM variables WHERE id = ? AND revision = ?`, v.ID, v.Revision)
		if err != nil {
			return process.FatalError(err, "delete variable")
		}
		if err := guardWrite(res, "variable", v.ID, v.Revision); err != nil {
			return err
		}
		s.variables[v.ID] = nil
	}
	return nil
}

// --- commit / rollback ---

func (s *sqliteSession) Commit(_ context.Context) error {
	if s.closed {
		return errors.New("session already closed", errors.CategoryConflict)
	}
	s.closed = true
	if err := s.tx.Commit(); err != nil {
		return process.FatalError(err, "commit sqlite transaction")
	}
	return nil
}

func (s *sqliteSession) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil {
		return process.FatalError(err, "rollback sqlite transaction")
	}
	return nil
}
