package analytics

import (
	"fmt"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

// Period selects a date window
type Period string

const (
	PeriodAll       Period = "all"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodLastMonth Period = "lastMonth"
	PeriodCustom    Period = "custom"
)

const dateLayout = "2006-01-02"

// Filter narrows rows to a period. Start and End are only read for
// PeriodCustom; a custom filter missing either bound matches everything.
type Filter struct {
	Period Period
	Start  *time.Time
	End    *time.Time
}

// ParseFilter builds a filter from query values. An empty period means all.
func ParseFilter(period, start, end string) (Filter, error) {
	f := Filter{Period: Period(period)}
	if f.Period == "" {
		f.Period = PeriodAll
	}

	switch f.Period {
	case PeriodAll, PeriodWeek, PeriodMonth, PeriodLastMonth:
		return f, nil
	case PeriodCustom:
	default:
		return Filter{}, fmt.Errorf("unknown period %q", period)
	}

	if start != "" {
		t, err := time.ParseInLocation(dateLayout, start, time.Local)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid start date %q", start)
		}
		f.Start = &t
	}
	if end != "" {
		t, err := time.ParseInLocation(dateLayout, end, time.Local)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid end date %q", end)
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return Filter{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return f, nil
}

// Bounds returns the inclusive first and last day of the window relative to
// now. ok is false when the filter matches every row.
func (f Filter) Bounds(now time.Time) (first, last time.Time, ok bool) {
	y, m, d := now.Date()
	loc := now.Location()

	switch f.Period {
	case PeriodWeek:
		// weeks run Monday to Sunday
		offset := (int(now.Weekday()) + 6) % 7
		first = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		return first, first.AddDate(0, 0, 6), true
	case PeriodMonth:
		first = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return first, time.Date(y, m+1, 0, 0, 0, 0, 0, loc), true
	case PeriodLastMonth:
		first = time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
		return first, time.Date(y, m, 0, 0, 0, 0, 0, loc), true
	case PeriodCustom:
		if f.Start == nil || f.End == nil {
			return time.Time{}, time.Time{}, false
		}
		return *f.Start, *f.End, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// FilterRows returns the rows whose date falls inside the filter window
func FilterRows(rows []storage.CrowdRow, f Filter, now time.Time) []storage.CrowdRow {
	first, last, ok := f.Bounds(now)
	if !ok {
		return rows
	}
	from, to := first.Format(dateLayout), last.Format(dateLayout)

	out := make([]storage.CrowdRow, 0, len(rows))
	for _, r := range rows {
		if r.Date >= from && r.Date <= to {
			out = append(out, r)
		}
	}
	return out
}
