package process

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// ParseISODuration parses an ISO-8601 period (PnYnMnWnDTnHnMnS) into a
// time.Duration. Years and months are calendar approximations (365 and 30
// days); jobs reschedule from "now", so drift does not accumulate.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	fail := func() (time.Duration, error) {
		return 0, errors.New("invalid ISO-8601 duration", errors.CategoryValidation).
			WithTextCode(ErrCodeRetryCycleParse).
			WithMetadata(map[string]any{"expression": orig})
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != 'P' && s[0] != 'p') {
		return fail()
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	sawComponent := false

	for len(s) > 0 {
		if s[0] == 'T' || s[0] == 't' {
			if inTime {
				return fail()
			}
			inTime = true
			s = s[1:]
			continue
		}

		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return fail()
		}
		value, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return fail()
		}
		unit := s[i]
		s = s[i+1:]
		sawComponent = true

		var scale time.Duration
		switch {
		case !inTime && (unit == 'Y' || unit == 'y'):
			scale = 365 * 24 * time.Hour
		case !inTime && (unit == 'M' || unit == 'm'):
			scale = 30 * 24 * time.Hour
		case !inTime && (unit == 'W' || unit == 'w'):
			scale = 7 * 24 * time.Hour
		case !inTime && (unit == 'D' || unit == 'd'):
			scale = 24 * time.Hour
		case inTime && (unit == 'H' || unit == 'h'):
			scale = time.Hour
		case inTime && (unit == 'M' || unit == 'm'):
			scale = time.Minute
		case inTime && (unit == 'S' || unit == 's'):
			scale = time.Second
		default:
			return fail()
		}
		total += time.Duration(value * float64(scale))
	}

	if !sawComponent {
		return fail()
	}
	return total, nil
}
