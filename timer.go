package process

import (
	"time"

	"github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"
)

var cronParser = rcron.NewParser(
	rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
)

// TimerDue computes when a timer declaration next fires, relative to now.
// Duration timers fire once after an ISO-8601 period; cron timers fire at
// the next matching instant and reschedule after each firing.
func TimerDue(decl *TimerDeclaration, now time.Time) (time.Time, error) {
	if decl == nil {
		return time.Time{}, errors.New("timer declaration required", errors.CategoryBadInput)
	}
	switch decl.Kind {
	case TimerKindDuration:
		d, err := ParseISODuration(decl.Expression)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	case TimerKindCron:
		schedule, err := cronParser.Parse(decl.Expression)
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.CategoryValidation, "invalid cron timer expression").
				WithMetadata(map[string]any{"expression": decl.Expression})
		}
		return schedule.Next(now), nil
	default:
		return time.Time{}, errors.New("unknown timer kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(decl.Kind)})
	}
}

// TimerRepeats reports whether a fired timer reschedules itself.
func TimerRepeats(decl *TimerDeclaration) bool {
	return decl != nil && decl.Kind == TimerKindCron
}
