// Package recurrence expands a recurring pattern plus its anchor event into
// concrete occurrences inside a query window. Calendar arithmetic happens in
// the owner's timezone so local recurrence times survive DST transitions;
// results come back as UTC instants.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calendar-service/internal/interval"
)

// DefaultMaxCandidates bounds how many candidate occurrences a single
// pattern may generate per query, regardless of end_date/count. Patterns
// without either would otherwise iterate forever.
const DefaultMaxCandidates = 10000

// ErrMalformedPattern marks patterns that cannot produce occurrences, e.g. a
// weekly pattern with no days of week. Callers treat it as zero occurrences
// for the one event, never as a fatal query error.
var ErrMalformedPattern = errors.New("malformed recurring pattern")

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type WeekOfMonth string

const (
	First  WeekOfMonth = "first"
	Second WeekOfMonth = "second"
	Third  WeekOfMonth = "third"
	Fourth WeekOfMonth = "fourth"
	Last   WeekOfMonth = "last"
)

// Pattern mirrors the stored recurring_patterns row. StartDate/EndDate and
// ExcludedDates are calendar dates; their time-of-day is ignored.
type Pattern struct {
	Frequency     Frequency
	Interval      int
	StartDate     time.Time
	EndDate       *time.Time
	Count         *int
	DaysOfWeek    []string
	DayOfMonth    *int
	WeekOfMonth   *WeekOfMonth
	MonthOfYear   *int
	ExcludedDates []time.Time
}

// Anchor carries the template event's own start/end; they supply the local
// time-of-day and the duration shared by every occurrence.
type Anchor struct {
	Start time.Time
	End   time.Time
}

type Options struct {
	// Location is the owner's timezone; UTC when nil.
	Location *time.Location
	// MaxCandidates overrides DefaultMaxCandidates when positive.
	MaxCandidates int
}

// Result holds the occurrences overlapping the window, in ascending start
// order. Truncated is set when generation hit the candidate ceiling before
// reaching the window's end.
type Result struct {
	Occurrences []interval.Interval
	Truncated   bool
}

var weekdays = map[string]rrule.Weekday{
	"mon": rrule.MO, "tue": rrule.TU, "wed": rrule.WE,
	"thu": rrule.TH, "fri": rrule.FR, "sat": rrule.SA, "sun": rrule.SU,
}

var monthWeeks = map[WeekOfMonth]int{
	First: 1, Second: 2, Third: 3, Fourth: 4, Last: -1,
}

// Expand generates the pattern's occurrences overlapping window. It is pure:
// identical inputs yield identical output.
func Expand(p Pattern, anchor Anchor, window interval.Interval, opts Options) (Result, error) {
	var res Result
	if !window.Valid() {
		return res, nil
	}
	if !anchor.Start.Before(anchor.End) {
		return res, fmt.Errorf("%w: anchor end not after start", ErrMalformedPattern)
	}
	if p.Interval < 1 {
		return res, fmt.Errorf("%w: interval %d", ErrMalformedPattern, p.Interval)
	}
	if p.EndDate != nil && p.Count != nil {
		return res, fmt.Errorf("%w: both end_date and count set", ErrMalformedPattern)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	ceiling := opts.MaxCandidates
	if ceiling <= 0 {
		ceiling = DefaultMaxCandidates
	}

	rule, err := buildRule(p, anchor, loc)
	if err != nil {
		return res, err
	}

	excluded := make(map[string]struct{}, len(p.ExcludedDates))
	for _, d := range p.ExcludedDates {
		excluded[d.Format("2006-01-02")] = struct{}{}
	}

	duration := anchor.End.Sub(anchor.Start)
	next := rule.Iterator()
	for generated := 0; ; {
		occStart, ok := next()
		if !ok {
			break
		}
		generated++
		if generated > ceiling {
			res.Truncated = true
			break
		}
		// Occurrences arrive in ascending order, so once a start clears the
		// window there is nothing left to emit.
		if !occStart.Before(window.End) {
			break
		}
		occEnd := occStart.Add(duration)
		if !occEnd.After(window.Start) {
			continue
		}
		if _, skip := excluded[occStart.In(loc).Format("2006-01-02")]; skip {
			continue
		}
		res.Occurrences = append(res.Occurrences, interval.Interval{
			Start: occStart.UTC(),
			End:   occEnd.UTC(),
		})
	}
	return res, nil
}

func buildRule(p Pattern, anchor Anchor, loc *time.Location) (*rrule.RRule, error) {
	local := anchor.Start.In(loc)
	dtstart := time.Date(
		p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, loc,
	)

	opt := rrule.ROption{
		Interval: p.Interval,
		Dtstart:  dtstart,
	}
	if p.EndDate != nil {
		e := *p.EndDate
		opt.Until = time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, 0, loc)
	}
	if p.Count != nil {
		opt.Count = *p.Count
	}

	switch p.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		if len(p.DaysOfWeek) == 0 {
			return nil, fmt.Errorf("%w: weekly pattern without days_of_week", ErrMalformedPattern)
		}
		for _, d := range p.DaysOfWeek {
			wd, ok := weekdays[d]
			if !ok {
				return nil, fmt.Errorf("%w: unknown weekday %q", ErrMalformedPattern, d)
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		switch {
		case p.DayOfMonth != nil:
			// Months lacking the day (the 31st in February) emit nothing.
			opt.Bymonthday = []int{*p.DayOfMonth}
		case p.WeekOfMonth != nil:
			nth, ok := monthWeeks[*p.WeekOfMonth]
			if !ok {
				return nil, fmt.Errorf("%w: unknown week_of_month %q", ErrMalformedPattern, *p.WeekOfMonth)
			}
			// The n-th occurrence of the start date's weekday.
			wd := rruleWeekday(dtstart.Weekday())
			opt.Byweekday = []rrule.Weekday{wd.Nth(nth)}
		}
		// With neither field set, recurrence sticks to the start date's day
		// of month.
	case Yearly:
		opt.Freq = rrule.YEARLY
		if p.MonthOfYear != nil {
			opt.Bymonth = []int{*p.MonthOfYear}
		}
		if p.DayOfMonth != nil {
			opt.Bymonthday = []int{*p.DayOfMonth}
		}
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrMalformedPattern, p.Frequency)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPattern, err)
	}
	return rule, nil
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
