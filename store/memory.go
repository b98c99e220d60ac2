package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
)

// MemoryStore is a thread-safe in-memory EntityStore. Sessions buffer every
// mutation and apply them with compare-and-set revision checks at commit, so
// two concurrent commands touching the same rows never both win.
type MemoryStore struct {
	mu  sync.RWMutex
	seq int64

	executions map[string]*memRow[*process.Execution]
	jobs       map[string]*memRow[*process.Job]
	tasks      map[string]*memRow[*process.Task]
	variables  map[string]*memRow[*process.Variable]
}

type memRow[T any] struct {
	value    T
	revision int
	seq      int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*memRow[*process.Execution]),
		jobs:       make(map[string]*memRow[*process.Job]),
		tasks:      make(map[string]*memRow[*process.Task]),
		variables:  make(map[string]*memRow[*process.Variable]),
	}
}

// Begin opens a unit-of-work session.
func (s *MemoryStore) Begin(_ context.Context) (process.Session, error) {
	return &memorySession{
		store:     s,
		execs:     newTxTable[*process.Execution](),
		jobs:      newTxTable[*process.Job](),
		tasks:     newTxTable[*process.Task](),
		variables: newTxTable[*process.Variable](),
	}, nil
}

// txTable tracks one entity type inside a session: a read cache plus
// buffered inserts, updates, and deletes.
type txTable[T any] struct {
	cache     map[string]T
	loadedRev map[string]int
	inserted  map[string]bool
	updated   map[string]bool
	deleted   map[string]bool
	order     []string // insertion order for deterministic overlay
}

func newTxTable[T any]() *txTable[T] {
	return &txTable[T]{
		cache:     make(map[string]T),
		loadedRev: make(map[string]int),
		inserted:  make(map[string]bool),
		updated:   make(map[string]bool),
		deleted:   make(map[string]bool),
	}
}

func (t *txTable[T]) load(id string, value T, revision int) {
	if _, ok := t.cache[id]; !ok {
		t.order = append(t.order, id)
	}
	t.cache[id] = value
	t.loadedRev[id] = revision
}

func (t *txTable[T]) insert(id string, value T) {
	if _, ok := t.cache[id]; !ok {
		t.order = append(t.order, id)
	}
	t.cache[id] = value
	t.inserted[id] = true
	delete(t.deleted, id)
}

func (t *txTable[T]) update(id string, value T) {
	if _, ok := t.cache[id]; !ok {
		t.order = append(t.order, id)
	}
	t.cache[id] = value
	if !t.inserted[id] {
		t.updated[id] = true
	}
}

func (t *txTable[T]) remove(id string) {
	delete(t.cache, id)
	if t.inserted[id] {
		delete(t.inserted, id)
		return
	}
	t.deleted[id] = true
	delete(t.updated, id)
}

type memorySession struct {
	store  *MemoryStore
	closed bool

	execs     *txTable[*process.Execution]
	jobs      *txTable[*process.Job]
	tasks     *txTable[*process.Task]
	variables *txTable[*process.Variable]
}

// --- executions ---

func (s *memorySession) FindExecution(_ context.Context, id string) (*process.Execution, error) {
	if e, ok := s.execs.cache[id]; ok {
		return e, nil
	}
	if s.execs.deleted[id] {
		return nil, process.NotFoundError("execution", process.ErrCodeExecutionNotFound, id)
	}
	s.store.mu.RLock()
	row, ok := s.store.executions[id]
	s.store.mu.RUnlock()
	if !ok {
		return nil, process.NotFoundError("execution", process.ErrCodeExecutionNotFound, id)
	}
	e := row.value.Clone()
	s.execs.load(id, e, row.revision)
	return e, nil
}

func (s *memorySession) FindExecutionsByInstance(ctx context.Context, instanceID string) ([]*process.Execution, error) {
	return s.queryExecutions(ctx, func(e *process.Execution) bool {
		return e.ProcessInstanceID == instanceID
	})
}

func (s *memorySession) FindChildExecutions(ctx context.Context, parentID string) ([]*process.Execution, error) {
	return s.queryExecutions(ctx, func(e *process.Execution) bool {
		return e.ParentID == parentID
	})
}

func (s *memorySession) queryExecutions(_ context.Context, match func(*process.Execution) bool) ([]*process.Execution, error) {
	ids := s.committedIDs(func(st *MemoryStore) map[string]int64 {
		out := make(map[string]int64, len(st.executions))
		for id, row := range st.executions {
			out[id] = row.seq
		}
		return out
	})

	var out []*process.Execution
	seen := make(map[string]bool)
	for _, id := range ids {
		if s.execs.deleted[id] {
			continue
		}
		if cached, ok := s.execs.cache[id]; ok {
			if match(cached) {
				out = append(out, cached)
			}
			seen[id] = true
			continue
		}
		s.store.mu.RLock()
		row, ok := s.store.executions[id]
		s.store.mu.RUnlock()
		if !ok {
			continue
		}
		e := row.value.Clone()
		if match(e) {
			s.execs.load(id, e, row.revision)
			out = append(out, e)
		}
		seen[id] = true
	}
	// session-local inserts, in insertion order
	for _, id := range s.execs.order {
		if seen[id] || !s.execs.inserted[id] {
			continue
		}
		if e := s.execs.cache[id]; e != nil && match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// committedIDs snapshots committed ids ordered by insertion sequence.
func (s *memorySession) committedIDs(collect func(*MemoryStore) map[string]int64) []string {
	s.store.mu.RLock()
	seqs := collect(s.store)
	s.store.mu.RUnlock()
	ids := make([]string, 0, len(seqs))
	for id := range seqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return seqs[ids[i]] < seqs[ids[j]] })
	return ids
}

func (s *memorySession) InsertExecution(_ context.Context, e *process.Execution) error {
	s.execs.insert(e.ID, e)
	return nil
}

func (s *memorySession) UpdateExecution(_ context.Context, e *process.Execution) error {
	s.execs.update(e.ID, e)
	return nil
}

func (s *memorySession) DeleteExecution(_ context.Context, id string) error {
	if _, err := s.FindExecution(context.Background(), id); err != nil {
		return err
	}
	s.execs.remove(id)
	return nil
}

// --- jobs ---

func (s *memorySession) FindJob(_ context.Context, id string) (*process.Job, error) {
	if j, ok := s.jobs.cache[id]; ok {
		return j, nil
	}
	if s.jobs.deleted[id] {
		return nil, process.NotFoundError("job", process.ErrCodeJobNotFound, id)
	}
	s.store.mu.RLock()
	row, ok := s.store.jobs[id]
	s.store.mu.RUnlock()
	if !ok {
		return nil, process.NotFoundError("job", process.ErrCodeJobNotFound, id)
	}
	j := row.value.Clone()
	s.jobs.load(id, j, row.revision)
	return j, nil
}

func (s *memorySession) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*process.Job, error) {
	jobs, err := s.queryJobs(ctx, func(j *process.Job) bool {
		return j.Acquirable(now)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].Priority != jobs[k].Priority {
			return jobs[i].Priority > jobs[k].Priority
		}
		return jobs[i].DueDate.Before(jobs[k].DueDate)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *memorySession) FindJobsByInstance(ctx context.Context, instanceID string) ([]*process.Job, error) {
	return s.queryJobs(ctx, func(j *process.Job) bool {
		return j.ProcessInstanceID == instanceID
	})
}

func (s *memorySession) FindExhaustedJobs(ctx context.Context, limit int) ([]*process.Job, error) {
	jobs, err := s.queryJobs(ctx, func(j *process.Job) bool {
		return j.Exhausted()
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *memorySession) queryJobs(_ context.Context, match func(*process.Job) bool) ([]*process.Job, error) {
	ids := s.committedIDs(func(st *MemoryStore) map[string]int64 {
		out := make(map[string]int64, len(st.jobs))
		for id, row := range st.jobs {
			out[id] = row.seq
		}
		return out
	})

	var out []*process.Job
	seen := make(map[string]bool)
	for _, id := range ids {
		if s.jobs.deleted[id] {
			continue
		}
		if cached, ok := s.jobs.cache[id]; ok {
			if match(cached) {
				out = append(out, cached)
			}
			seen[id] = true
			continue
		}
		s.store.mu.RLock()
		row, ok := s.store.jobs[id]
		s.store.mu.RUnlock()
		if !ok {
			continue
		}
		j := row.value.Clone()
		if match(j) {
			s.jobs.load(id, j, row.revision)
			out = append(out, j)
		}
		seen[id] = true
	}
	for _, id := range s.jobs.order {
		if seen[id] || !s.jobs.inserted[id] {
			continue
		}
		if j := s.jobs.cache[id]; j != nil && match(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *memorySession) InsertJob(_ context.Context, j *process.Job) error {
	s.jobs.insert(j.ID, j)
	return nil
}

func (s *memorySession) UpdateJob(_ context.Context, j *process.Job) error {
	s.jobs.update(j.ID, j)
	return nil
}

func (s *memorySession) DeleteJob(_ context.Context, id string) error {
	if _, err := s.FindJob(context.Background(), id); err != nil {
		return err
	}
	s.jobs.remove(id)
	return nil
}

// --- tasks ---

func (s *memorySession) FindTask(_ context.Context, id string) (*process.Task, error) {
	if t, ok := s.tasks.cache[id]; ok {
		return t, nil
	}
	if s.tasks.deleted[id] {
		return nil, process.NotFoundError("task", process.ErrCodeTaskNotFound, id)
	}
	s.store.mu.RLock()
	row, ok := s.store.tasks[id]
	s.store.mu.RUnlock()
	if !ok {
		return nil, process.NotFoundError("task", process.ErrCodeTaskNotFound, id)
	}
	t := row.value.Clone()
	s.tasks.load(id, t, row.revision)
	return t, nil
}

func (s *memorySession) FindTasksByInstance(_ context.Context, instanceID string) ([]*process.Task, error) {
	ids := s.committedIDs(func(st *MemoryStore) map[string]int64 {
		out := make(map[string]int64, len(st.tasks))
		for id, row := range st.tasks {
			out[id] = row.seq
		}
		return out
	})

	var out []*process.Task
	seen := make(map[string]bool)
	for _, id := range ids {
		if s.tasks.deleted[id] {
			continue
		}
		if cached, ok := s.tasks.cache[id]; ok {
			if cached.ProcessInstanceID == instanceID {
				out = append(out, cached)
			}
			seen[id] = true
			continue
		}
		s.store.mu.RLock()
		row, ok := s.store.tasks[id]
		s.store.mu.RUnlock()
		if !ok {
			continue
		}
		t := row.value.Clone()
		if t.ProcessInstanceID == instanceID {
			s.tasks.load(id, t, row.revision)
			out = append(out, t)
		}
		seen[id] = true
	}
	for _, id := range s.tasks.order {
		if seen[id] || !s.tasks.inserted[id] {
			continue
		}
		if t := s.tasks.cache[id]; t != nil && t.ProcessInstanceID == instanceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memorySession) InsertTask(_ context.Context, t *process.Task) error {
	s.tasks.insert(t.ID, t)
	return nil
}

func (s *memorySession) DeleteTask(_ context.Context, id string) error {
	if _, err := s.FindTask(context.Background(), id); err != nil {
		return err
	}
	s.tasks.remove(id)
	return nil
}

func (s *memorySession) DeleteTasksByInstance(ctx context.Context, instanceID string) error {
	tasks, err := s.FindTasksByInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.tasks.remove(t.ID)
	}
	return nil
}

// --- variables ---

func (s *memorySession) FindVariable(ctx context.Context, executionID, name string) (*process.Variable, error) {
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

func (s *memorySession) FindVariablesByExecution(_ context.Context, executionID string) ([]*process.Variable, error) {
	ids := s.committedIDs(func(st *MemoryStore) map[string]int64 {
		out := make(map[string]int64, len(st.variables))
		for id, row := range st.variables {
			out[id] = row.seq
		}
		return out
	})

	var out []*process.Variable
	seen := make(map[string]bool)
	for _, id := range ids {
		if s.variables.deleted[id] {
			continue
		}
		if cached, ok := s.variables.cache[id]; ok {
			if cached.ExecutionID == executionID {
				out = append(out, cached)
			}
			seen[id] = true
			continue
		}
		s.store.mu.RLock()
		row, ok := s.store.variables[id]
		s.store.mu.RUnlock()
		if !ok {
			continue
		}
		v := row.value.Clone()
		if v.ExecutionID == executionID {
			s.variables.load(id, v, row.revision)
			out = append(out, v)
		}
		seen[id] = true
	}
	for _, id := range s.variables.order {
		if seen[id] || !s.variables.inserted[id] {
			continue
		}
		if v := s.variables.cache[id]; v != nil && v.ExecutionID == executionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memorySession) InsertVariable(_ context.Context, v *process.Variable) error {
	s.variables.insert(v.ID, v)
	return nil
}

func (s *memorySession) UpdateVariable(_ context.Context, v *process.Variable) error {
	s.variables.update(v.ID, v)
	return nil
}

func (s *memorySession) DeleteVariablesByExecution(ctx context.Context, executionID string) error {
	vars, err := s.FindVariablesByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	for _, v := range vars {
		s.variables.remove(v.ID)
	}
	return nil
}

// --- commit / rollback ---

// Commit validates every buffered mutation against current committed
// revisions under one store lock, then applies all of them. Any stale row
// fails the whole session with a conflict and applies nothing.
func (s *memorySession) Commit(_ context.Context) error {
	if s.closed {
		return errors.New("session already closed", errors.CategoryConflict)
	}
	s.closed = true

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if err := validateTable(s.execs, s.store.executions, "execution"); err != nil {
		return err
	}
	if err := validateTable(s.jobs, s.store.jobs, "job"); err != nil {
		return err
	}
	if err := validateTable(s.tasks, s.store.tasks, "task"); err != nil {
		return err
	}
	if err := validateTable(s.variables, s.store.variables, "variable"); err != nil {
		return err
	}

	applyTable(s.execs, s.store.executions, &s.store.seq,
		func(e *process.Execution, rev int) *process.Execution { c := e.Clone(); c.Revision = rev; e.Revision = rev; return c })
	applyTable(s.jobs, s.store.jobs, &s.store.seq,
		func(j *process.Job, rev int) *process.Job { c := j.Clone(); c.Revision = rev; j.Revision = rev; return c })
	applyTable(s.tasks, s.store.tasks, &s.store.seq,
		func(t *process.Task, rev int) *process.Task { c := t.Clone(); c.Revision = rev; t.Revision = rev; return c })
	applyTable(s.variables, s.store.variables, &s.store.seq,
		func(v *process.Variable, rev int) *process.Variable { c := v.Clone(); c.Revision = rev; v.Revision = rev; return c })
	return nil
}

func (s *memorySession) Rollback() error {
	s.closed = true
	return nil
}

func validateTable[T any](tx *txTable[T], committed map[string]*memRow[T], kind string) error {
	for id := range tx.inserted {
		if _, exists := committed[id]; exists {
			return process.ConflictError(kind, id, 0, committed[id].revision)
		}
	}
	for id := range tx.updated {
		row, exists := committed[id]
		if !exists {
			return process.ConflictError(kind, id, tx.loadedRev[id], -1)
		}
		if row.revision != tx.loadedRev[id] {
			return process.ConflictError(kind, id, tx.loadedRev[id], row.revision)
		}
	}
	for id := range tx.deleted {
		row, exists := committed[id]
		if !exists {
			return process.ConflictError(kind, id, tx.loadedRev[id], -1)
		}
		if row.revision != tx.loadedRev[id] {
			return process.ConflictError(kind, id, tx.loadedRev[id], row.revision)
		}
	}
	return nil
}

func applyTable[T any](tx *txTable[T], committed map[string]*memRow[T], seq *int64, freeze func(T, int) T) {
	for _, id := range tx.order {
		switch {
		case tx.inserted[id]:
			*seq++
			committed[id] = &memRow[T]{value: freeze(tx.cache[id], 1), revision: 1, seq: *seq}
		case tx.updated[id]:
			rev := tx.loadedRev[id] + 1
			committed[id] = &memRow[T]{value: freeze(tx.cache[id], rev), revision: rev, seq: committed[id].seq}
		}
	}
	for id := range tx.deleted {
		delete(committed, id)
	}
}
