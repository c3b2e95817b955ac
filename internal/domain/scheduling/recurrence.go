package scheduling

import (
	"time"

	"github.com/teambition/rrule-go"
)

const (
	// maxOccurrences caps how many shift instances a single recurrence rule
	// may materialize.
	maxOccurrences = 52
	// recurrenceHorizon bounds how far ahead occurrences are generated.
	recurrenceHorizon = 6 * 30 * 24 * time.Hour
)

// ExpandRecurrence materializes the start times produced by an RFC 5545
// recurrence rule anchored at start. The first element is always start
// itself. Expansion stops at maxOccurrences or recurrenceHorizon, whichever
// comes first.
func ExpandRecurrence(rule string, start time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, validationf("invalid recurrence rule: %v", err)
	}
	opt.Dtstart = start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, validationf("invalid recurrence rule: %v", err)
	}

	occurrences := r.Between(start, start.Add(recurrenceHorizon), true)
	if len(occurrences) == 0 {
		occurrences = []time.Time{start}
	}
	if len(occurrences) > maxOccurrences {
		occurrences = occurrences[:maxOccurrences]
	}
	return occurrences, nil
}
