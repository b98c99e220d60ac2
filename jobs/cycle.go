package jobs

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
)

// RetryCycle is a parsed retry-cycle expression. The persisted wire format is
//
//	expr := duration | "R" [digits] "/" duration
//
// where duration is an ISO-8601 period. Omitted digits after R mean
// unlimited repeats.
type RetryCycle struct {
	// HasRepeat is true for the R-prefixed form.
	HasRepeat bool
	// Unbounded is true when the repeat count was omitted ("R/PT1H").
	Unbounded bool
	// Repetitions is the declared repeat count when bounded.
	Repetitions int
	// Interval separates consecutive attempts.
	Interval time.Duration
}

// DurationOnly reports the bare single-segment form ("PT5M").
func (c RetryCycle) DurationOnly() bool {
	return !c.HasRepeat
}

// ParseRetryCycle parses a retry-cycle expression. Any malformed input is a
// parse error the caller substitutes the default strategy for.
func ParseRetryCycle(expr string) (RetryCycle, error) {
	orig := expr
	fail := func(reason string) (RetryCycle, error) {
		return RetryCycle{}, errors.New("invalid retry cycle: "+reason, errors.CategoryValidation).
			WithTextCode(process.ErrCodeRetryCycleParse).
			WithMetadata(map[string]any{"expression": orig})
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fail("empty expression")
	}

	if expr[0] != 'R' && expr[0] != 'r' {
		d, err := process.ParseISODuration(expr)
		if err != nil {
			return fail("bad duration")
		}
		return RetryCycle{Interval: d}, nil
	}

	rest := expr[1:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return fail("repeat form requires a /duration segment")
	}
	digits := rest[:slash]
	durPart := rest[slash+1:]

	cycle := RetryCycle{HasRepeat: true}
	if digits == "" {
		cycle.Unbounded = true
	} else {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 {
			return fail("bad repeat count")
		}
		cycle.Repetitions = n
	}

	d, err := process.ParseISODuration(durPart)
	if err != nil {
		return fail("bad duration")
	}
	cycle.Interval = d
	return cycle, nil
}
