package scheduler

import (
	"fmt"
	"time"
)

// Entry maps a time of day to a job name.
type Entry struct {
	At  string // "15:04" in the business timezone
	Job string
}

// parsedEntry is an Entry with its time resolved to minutes past midnight.
type parsedEntry struct {
	minuteOfDay int
	job         string
}

// Dispatcher maps wall-clock time to a named recurring job via static
// weekly tables (weekday, Saturday, Sunday). Tables are loaded once and
// immutable thereafter.
type Dispatcher struct {
	loc       *time.Location
	tolerance time.Duration

	weekday  []parsedEntry
	saturday []parsedEntry
	sunday   []parsedEntry
}

// NewDispatcher builds a dispatcher over the three static tables. The
// tolerance window absorbs the coarse granularity of the external trigger
// (e.g. a 15-minute poll).
func NewDispatcher(loc *time.Location, tolerance time.Duration, weekday, saturday, sunday []Entry) (*Dispatcher, error) {
	d := &Dispatcher{
		loc:       loc,
		tolerance: tolerance,
	}

	var err error
	if d.weekday, err = parseEntries(weekday); err != nil {
		return nil, fmt.Errorf("weekday schedule: %w", err)
	}
	if d.saturday, err = parseEntries(saturday); err != nil {
		return nil, fmt.Errorf("saturday schedule: %w", err)
	}
	if d.sunday, err = parseEntries(sunday); err != nil {
		return nil, fmt.Errorf("sunday schedule: %w", err)
	}

	return d, nil
}

func parseEntries(entries []Entry) ([]parsedEntry, error) {
	parsed := make([]parsedEntry, 0, len(entries))
	for _, e := range entries {
		t, err := time.Parse("15:04", e.At)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q for job %q: %w", e.At, e.Job, err)
		}
		if e.Job == "" {
			return nil, fmt.Errorf("entry at %s has no job name", e.At)
		}
		parsed = append(parsed, parsedEntry{
			minuteOfDay: t.Hour()*60 + t.Minute(),
			job:         e.Job,
		})
	}
	return parsed, nil
}

// Dispatch returns the job scheduled nearest to now, if any entry in
// today's table falls within the tolerance window. When several entries
// match, the closest wins.
func (d *Dispatcher) Dispatch(now time.Time) (string, bool) {
	local := now.In(d.loc)

	var table []parsedEntry
	switch local.Weekday() {
	case time.Saturday:
		table = d.saturday
	case time.Sunday:
		table = d.sunday
	default:
		table = d.weekday
	}

	nowMinutes := float64(local.Hour()*60) + float64(local.Minute()) + float64(local.Second())/60.0
	toleranceMinutes := d.tolerance.Minutes()

	best := ""
	bestDistance := toleranceMinutes + 1
	for _, entry := range table {
		distance := nowMinutes - float64(entry.minuteOfDay)
		if distance < 0 {
			distance = -distance
		}
		if distance <= toleranceMinutes && distance < bestDistance {
			best = entry.job
			bestDistance = distance
		}
	}

	return best, best != ""
}

// Day returns the ledger day key for a given instant in the business
// timezone.
func (d *Dispatcher) Day(now time.Time) string {
	return now.In(d.loc).Format("2006-01-02")
}
