package process

import (
	"testing"
	"time"
)

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT10M", 10 * time.Minute},
		{"PT5S", 5 * time.Second},
		{"PT1H30M", 90 * time.Minute},
		{"P1D", 24 * time.Hour},
		{"P1DT12H", 36 * time.Hour},
		{"P2W", 14 * 24 * time.Hour},
		{"P1M", 30 * 24 * time.Hour},
		{"P1Y", 365 * 24 * time.Hour},
		{"PT0.5H", 30 * time.Minute},
	}
	for _, tc := range cases {
		got, err := ParseISODuration(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseISODurationRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "P", "10M", "PT", "PTXM", "PT10", "P10H", "PT1HT1M"} {
		if _, err := ParseISODuration(in); err == nil {
			t.Fatalf("%q: expected parse error", in)
		} else if errorCode(err) != ErrCodeRetryCycleParse {
			t.Fatalf("%q: expected %s, got %v", in, ErrCodeRetryCycleParse, err)
		}
	}
}

func TestTimerDueDuration(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	due, err := TimerDue(&TimerDeclaration{Kind: TimerKindDuration, Expression: "PT2H"}, now)
	if err != nil {
		t.Fatalf("timer due: %v", err)
	}
	if !due.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("got %s, want %s", due, now.Add(2*time.Hour))
	}
}

func TestTimerDueCron(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	due, err := TimerDue(&TimerDeclaration{Kind: TimerKindCron, Expression: "0 9 * * *"}, now)
	if err != nil {
		t.Fatalf("timer due: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("got %s, want %s", due, want)
	}
}

func TestTimerDueRejectsBadCron(t *testing.T) {
	if _, err := TimerDue(&TimerDeclaration{Kind: TimerKindCron, Expression: "not a cron"}, time.Now()); err == nil {
		t.Fatalf("expected cron parse error")
	}
}

func TestTimerRepeats(t *testing.T) {
	if TimerRepeats(&TimerDeclaration{Kind: TimerKindDuration, Expression: "PT1H"}) {
		t.Fatalf("duration timers fire once")
	}
	if !TimerRepeats(&TimerDeclaration{Kind: TimerKindCron, Expression: "@hourly"}) {
		t.Fatalf("cron timers repeat")
	}
	if TimerRepeats(nil) {
		t.Fatalf("nil declaration never repeats")
	}
}
