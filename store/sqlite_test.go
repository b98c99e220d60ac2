package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/store"
)

func openSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "procd.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func beginSQLite(t *testing.T, st *store.SQLiteStore) process.Session {
	t.Helper()
	session, err := st.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return session
}

func commitSQLite(t *testing.T, session process.Session) {
	t.Helper()
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSQLiteExecutionRoundTrip(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	exec := process.NewExecution()
	exec.ProcessInstanceID = exec.ID
	exec.ProcessDefinitionID = "def-1"
	exec.ActivityID = "review"
	exec.IsScope = true
	exec.IsConcurrent = true

	session := beginSQLite(t, st)
	if err := session.InsertExecution(ctx, exec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	commitSQLite(t, session)
	if exec.Revision != 1 {
		t.Fatalf("insert revision = %d, want 1", exec.Revision)
	}

	session = beginSQLite(t, st)
	got, err := session.FindExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ActivityID != "review" || !got.IsScope || !got.IsConcurrent || !got.IsActive {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.Role != process.RoleActive {
		t.Fatalf("role = %s", got.Role)
	}
	if !got.CreatedAt.Equal(exec.CreatedAt) {
		t.Fatalf("created at %v != %v", got.CreatedAt, exec.CreatedAt)
	}

	got.ActivityID = "release"
	if err := session.UpdateExecution(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	commitSQLite(t, session)
	if got.Revision != 2 {
		t.Fatalf("update revision = %d, want 2", got.Revision)
	}
}

func TestSQLiteStaleUpdateConflicts(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	job := process.NewJob("async-continue", "review")
	session := beginSQLite(t, st)
	if err := session.InsertJob(ctx, job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	commitSQLite(t, session)

	// first reader takes a copy, second writer moves the row on
	session = beginSQLite(t, st)
	stale, err := session.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	staleCopy := stale.Clone()
	commitSQLite(t, session)

	session = beginSQLite(t, st)
	current, err := session.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	current.Retries = 1
	if err := session.UpdateJob(ctx, current); err != nil {
		t.Fatalf("update: %v", err)
	}
	commitSQLite(t, session)

	session = beginSQLite(t, st)
	staleCopy.Retries = 9
	err = session.UpdateJob(ctx, staleCopy)
	if !process.IsConflict(err) {
		t.Fatalf("stale update should conflict, got %v", err)
	}
	if rbErr := session.Rollback(); rbErr != nil {
		t.Fatalf("rollback: %v", rbErr)
	}

	session = beginSQLite(t, st)
	final, err := session.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if final.Retries != 1 {
		t.Fatalf("winner's write lost: retries = %d", final.Retries)
	}
	commitSQLite(t, session)
}

func TestSQLiteRollbackDiscards(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	task := &process.Task{ID: "task-1", ExecutionID: "e1", ProcessInstanceID: "p1", Name: "review", CreatedAt: time.Now().UTC()}
	session := beginSQLite(t, st)
	if err := session.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := session.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	session = beginSQLite(t, st)
	_, err := session.FindTask(ctx, "task-1")
	if !process.IsNotFound(err) {
		t.Fatalf("rolled-back insert should be gone, got %v", err)
	}
	commitSQLite(t, session)
}

func TestSQLiteFindDueJobsOrderingAndFilters(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, mutate func(*process.Job)) {
		job := process.NewJob("async-continue", id)
		job.ID = id
		mutate(job)
		session := beginSQLite(t, st)
		if err := session.InsertJob(ctx, job); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		commitSQLite(t, session)
	}

	mk("low", func(j *process.Job) { j.Priority = 0; j.DueDate = now.Add(-time.Minute) })
	mk("high", func(j *process.Job) { j.Priority = 10; j.DueDate = now.Add(-time.Minute) })
	mk("high-later", func(j *process.Job) { j.Priority = 10; j.DueDate = now.Add(-time.Second) })
	mk("future", func(j *process.Job) { j.DueDate = now.Add(time.Hour) })
	mk("spent", func(j *process.Job) { j.Retries = 0; j.DueDate = now.Add(-time.Minute) })
	mk("backing-off", func(j *process.Job) {
		j.DueDate = now.Add(-time.Minute)
		j.LockExpiration = now.Add(10 * time.Minute)
	})

	session := beginSQLite(t, st)
	due, err := session.FindDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	var ids []string
	for _, j := range due {
		ids = append(ids, j.ID)
	}
	want := []string{"high", "high-later", "low"}
	if len(ids) != len(want) {
		t.Fatalf("due jobs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("due jobs = %v, want %v", ids, want)
		}
	}

	limited, err := session.FindDueJobs(ctx, now, 2)
	if err != nil {
		t.Fatalf("find due limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "high" {
		t.Fatalf("limited = %v", limited)
	}

	exhausted, err := session.FindExhaustedJobs(ctx, 10)
	if err != nil {
		t.Fatalf("find exhausted: %v", err)
	}
	if len(exhausted) != 1 || exhausted[0].ID != "spent" {
		t.Fatalf("exhausted = %+v", exhausted)
	}
	commitSQLite(t, session)
}

func TestSQLiteJobTimesSurviveRoundTrip(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	job := process.NewJob("timer-catch", "wait")
	job.DueDate = due
	job.LockOwner = "worker-1"
	job.LockExpiration = due.Add(5 * time.Minute)

	session := beginSQLite(t, st)
	if err := session.InsertJob(ctx, job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	commitSQLite(t, session)

	session = beginSQLite(t, st)
	got, err := session.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.DueDate.Equal(due) || !got.LockExpiration.Equal(due.Add(5*time.Minute)) {
		t.Fatalf("times drifted: due=%v lock=%v", got.DueDate, got.LockExpiration)
	}
	if got.LockOwner != "worker-1" {
		t.Fatalf("lock owner = %q", got.LockOwner)
	}

	// a released lock stores as the zero time and reads back as such
	got.ReleaseLock()
	if err := session.UpdateJob(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	commitSQLite(t, session)

	session = beginSQLite(t, st)
	cleared, err := session.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if cleared.LockOwner != "" || !cleared.LockExpiration.IsZero() {
		t.Fatalf("lease not cleared: %+v", cleared)
	}
	commitSQLite(t, session)
}

func TestSQLiteVariables(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	exec := process.NewExecution()
	exec.ProcessInstanceID = exec.ID

	session := beginSQLite(t, st)
	if err := session.InsertExecution(ctx, exec); err != nil {
		t.Fatalf("insert execution: %v", err)
	}
	if err := session.InsertVariable(ctx, process.NewVariable(exec, "customer", "acme")); err != nil {
		t.Fatalf("insert variable: %v", err)
	}
	if err := session.InsertVariable(ctx, process.NewVariable(exec, "expedited", true)); err != nil {
		t.Fatalf("insert variable: %v", err)
	}
	commitSQLite(t, session)

	session = beginSQLite(t, st)
	v, err := session.FindVariable(ctx, exec.ID, "customer")
	if err != nil {
		t.Fatalf("find variable: %v", err)
	}
	if v == nil || v.Value != "acme" {
		t.Fatalf("customer = %+v", v)
	}
	v, err = session.FindVariable(ctx, exec.ID, "expedited")
	if err != nil {
		t.Fatalf("find variable: %v", err)
	}
	if v == nil || v.Value != true {
		t.Fatalf("expedited = %+v", v)
	}

	missing, err := session.FindVariable(ctx, exec.ID, "absent")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing variable should be nil, got %+v", missing)
	}

	if err := session.DeleteVariablesByExecution(ctx, exec.ID); err != nil {
		t.Fatalf("delete variables: %v", err)
	}
	all, err := session.FindVariablesByExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("list variables: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("variables survived delete: %+v", all)
	}
	commitSQLite(t, session)
}
