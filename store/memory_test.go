package store

import (
	"context"
	"testing"
	"time"

	process "github.com/goliatone/go-process"
)

func mustBegin(t *testing.T, s *MemoryStore) process.Session {
	t.Helper()
	session, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return session
}

func seedExecution(t *testing.T, s *MemoryStore) *process.Execution {
	t.Helper()
	session := mustBegin(t, s)
	exec := process.NewExecution()
	exec.ProcessInstanceID = exec.ID
	if err := session.InsertExecution(context.Background(), exec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return exec
}

func TestCommitAssignsRevisions(t *testing.T) {
	s := NewMemoryStore()
	exec := seedExecution(t, s)
	if exec.Revision != 1 {
		t.Fatalf("insert commits at revision 1, got %d", exec.Revision)
	}

	session := mustBegin(t, s)
	found, err := session.FindExecution(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	found.ActivityID = "review"
	if err := session.UpdateExecution(context.Background(), found); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if found.Revision != 2 {
		t.Fatalf("update bumps revision, got %d", found.Revision)
	}
}

func TestConcurrentUpdateConflicts(t *testing.T) {
	s := NewMemoryStore()
	exec := seedExecution(t, s)
	ctx := context.Background()

	s1 := mustBegin(t, s)
	s2 := mustBegin(t, s)

	e1, _ := s1.FindExecution(ctx, exec.ID)
	e2, _ := s2.FindExecution(ctx, exec.ID)

	e1.ActivityID = "a"
	if err := s1.UpdateExecution(ctx, e1); err != nil {
		t.Fatalf("update 1: %v", err)
	}
	if err := s1.Commit(ctx); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	e2.ActivityID = "b"
	if err := s2.UpdateExecution(ctx, e2); err != nil {
		t.Fatalf("update 2: %v", err)
	}
	err := s2.Commit(ctx)
	if !process.IsConflict(err) {
		t.Fatalf("second writer must lose with a conflict, got %v", err)
	}

	// the winner's write survives
	s3 := mustBegin(t, s)
	defer s3.Rollback()
	final, _ := s3.FindExecution(ctx, exec.ID)
	if final.ActivityID != "a" {
		t.Fatalf("losing session must not leak writes, got %q", final.ActivityID)
	}
}

func TestConcurrentDeleteConflicts(t *testing.T) {
	s := NewMemoryStore()
	exec := seedExecution(t, s)
	ctx := context.Background()

	s1 := mustBegin(t, s)
	s2 := mustBegin(t, s)
	e1, _ := s1.FindExecution(ctx, exec.ID)
	if _, err := s2.FindExecution(ctx, exec.ID); err != nil {
		t.Fatalf("find: %v", err)
	}

	e1.ActivityID = "moved"
	_ = s1.UpdateExecution(ctx, e1)
	if err := s1.Commit(ctx); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	if err := s2.DeleteExecution(ctx, exec.ID); err != nil {
		t.Fatalf("buffered delete: %v", err)
	}
	if err := s2.Commit(ctx); !process.IsConflict(err) {
		t.Fatalf("stale delete must conflict, got %v", err)
	}
}

func TestInsertExistingConflicts(t *testing.T) {
	s := NewMemoryStore()
	exec := seedExecution(t, s)
	ctx := context.Background()

	session := mustBegin(t, s)
	dup := exec.Clone()
	dup.Revision = 0
	if err := session.InsertExecution(ctx, dup); err != nil {
		t.Fatalf("buffered insert: %v", err)
	}
	if err := session.Commit(ctx); !process.IsConflict(err) {
		t.Fatalf("duplicate insert must conflict, got %v", err)
	}
}

func TestSessionReadsObserveOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	exec := seedExecution(t, s)
	ctx := context.Background()

	session := mustBegin(t, s)
	defer session.Rollback()

	e, _ := session.FindExecution(ctx, exec.ID)
	e.ActivityID = "inflight"
	if err := session.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := session.FindExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("refind: %v", err)
	}
	if again.ActivityID != "inflight" {
		t.Fatalf("session must serve its own mutation, got %q", again.ActivityID)
	}

	child := process.NewExecution()
	child.ParentID = exec.ID
	child.ProcessInstanceID = exec.ProcessInstanceID
	if err := session.InsertExecution(ctx, child); err != nil {
		t.Fatalf("insert child: %v", err)
	}
	children, err := session.FindChildExecutions(ctx, exec.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("queries must overlay session inserts, got %d", len(children))
	}

	if err := session.DeleteExecution(ctx, child.ID); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	children, _ = session.FindChildExecutions(ctx, exec.ID)
	if len(children) != 0 {
		t.Fatalf("queries must hide session deletes, got %d", len(children))
	}
}

func TestFindDueJobsOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	session := mustBegin(t, s)
	mk := func(priority int, due time.Time) *process.Job {
		j := process.NewJob(process.JobTypeAsyncContinue, "step")
		j.Priority = priority
		j.DueDate = due
		if err := session.InsertJob(ctx, j); err != nil {
			t.Fatalf("insert job: %v", err)
		}
		return j
	}
	low := mk(0, now.Add(-3*time.Minute))
	high := mk(5, now.Add(-time.Minute))
	mid := mk(5, now.Add(-2*time.Minute))
	mk(0, now.Add(time.Hour)) // not due
	if err := session.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	read := mustBegin(t, s)
	defer read.Rollback()
	due, err := read.FindDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("want 3 due jobs, got %d", len(due))
	}
	if due[0].ID != mid.ID || due[1].ID != high.ID || due[2].ID != low.ID {
		t.Fatalf("order must be priority desc, due asc: got %s %s %s", due[0].ID, due[1].ID, due[2].ID)
	}

	limited, _ := read.FindDueJobs(ctx, now, 1)
	if len(limited) != 1 || limited[0].ID != mid.ID {
		t.Fatalf("limit must truncate after ordering")
	}
}

func TestFindVariableMissingReturnsNil(t *testing.T) {
	s := NewMemoryStore()
	session := mustBegin(t, s)
	defer session.Rollback()
	v, err := session.FindVariable(context.Background(), "exec-1", "missing")
	if err != nil {
		t.Fatalf("find variable: %v", err)
	}
	if v != nil {
		t.Fatalf("missing variable is nil, not an error")
	}
}
