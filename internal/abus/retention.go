package abus

import (
	"sort"
	"time"
)

// RunNameLayout is the time layout of run names, e.g. 2017_07_14_1200.
const RunNameLayout = "2006_01_02_1504"

// ParseRunTime parses a run name in local time.
func ParseRunTime(runName string) (time.Time, bool) {
	t, err := time.ParseInLocation(RunNameLayout, runName, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RetentionPolicy decides which runs survive a prune. Ages are in days
// relative to the time the policy is applied.
type RetentionPolicy struct {
	// KeepAllDays keeps every run younger than this.
	KeepAllDays int
	// KeepDailyDays keeps the newest run of each day younger than this.
	KeepDailyDays int
	// KeepIntervalDays is the bucket width, in days, used past KeepDailyDays.
	KeepIntervalDays int
	// KeepIntervalForDays keeps the newest run of each bucket younger than this.
	KeepIntervalForDays int
}

// DefaultRetentionPolicy keeps daily runs for a week and biweekly runs for
// about five months.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepDailyDays:       7,
		KeepIntervalDays:    14,
		KeepIntervalForDays: 150,
	}
}

type datedRun struct {
	name string
	at   time.Time
}

// Keep returns the run names to retain, in ascending order. Run names that
// do not parse as a date are always kept, as is the newest run.
func (p RetentionPolicy) Keep(runs []string, now time.Time) []string {
	keepSet := make(map[string]bool)

	var dated []datedRun
	for _, name := range runs {
		at, ok := ParseRunTime(name)
		if !ok {
			keepSet[name] = true
			continue
		}
		dated = append(dated, datedRun{name: name, at: at})
	}

	// newest first
	sort.Slice(dated, func(i, j int) bool {
		return dated[i].at.After(dated[j].at)
	})
	if len(dated) > 0 {
		keepSet[dated[0].name] = true
	}

	days := make(map[string]bool)
	buckets := make(map[int64]bool)
	for _, r := range dated {
		age := now.Sub(r.at)
		switch {
		case age < daysDuration(p.KeepAllDays):
			keepSet[r.name] = true
		case age < daysDuration(p.KeepDailyDays):
			day := r.at.Format("2006-01-02")
			if !days[day] {
				days[day] = true
				keepSet[r.name] = true
			}
		case p.KeepIntervalDays > 0 && age < daysDuration(p.KeepIntervalForDays):
			bucket := dayNumber(r.at) / int64(p.KeepIntervalDays)
			if !buckets[bucket] {
				buckets[bucket] = true
				keepSet[r.name] = true
			}
		}
	}

	keep := make([]string, 0, len(keepSet))
	for name := range keepSet {
		keep = append(keep, name)
	}
	sort.Strings(keep)
	return keep
}

func daysDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// dayNumber counts calendar days since the epoch for t's local date.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
