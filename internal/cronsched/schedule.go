// Package cronsched implements named periodic jobs driven by a standard
// 5-field cron expression: minute hour day-of-month month day-of-week.
// Fields support *, exact numbers, N-M ranges, comma lists, and */N steps.
package cronsched

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldLimits describes one cron field's range.
var fieldLimits = []struct {
	name string
	min  int
	max  int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// Schedule is a parsed cron expression. Each field is a bitmask of the
// allowed values; bit i set means value i matches.
type Schedule struct {
	expr   string
	fields [5]uint64
}

// Parse validates and compiles a 5-field cron expression.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression must have exactly 5 fields (minute hour day month weekday)")
	}
	s := &Schedule{expr: expr}
	for i, field := range parts {
		mask, err := parseField(field, fieldLimits[i].min, fieldLimits[i].max, fieldLimits[i].name)
		if err != nil {
			return nil, err
		}
		s.fields[i] = mask
	}
	return s, nil
}

// String returns the original expression.
func (s *Schedule) String() string { return s.expr }

// Matches reports whether t satisfies the expression.
func (s *Schedule) Matches(t time.Time) bool {
	values := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, v := range values {
		if s.fields[i]&(1<<uint(v)) == 0 {
			return false
		}
	}
	return true
}

// nextSearchBound caps the forward search. Five years of minutes covers
// every satisfiable 5-field expression, including Feb 29 schedules.
const nextSearchBound = 5 * 366 * 24 * 60

// Next returns the first fire time strictly after t, or false when the
// expression never fires within the search bound.
func (s *Schedule) Next(t time.Time) (time.Time, bool) {
	cand := t.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < nextSearchBound; i++ {
		if s.Matches(cand) {
			return cand, true
		}
		// Skip the rest of a non-matching hour or day in one step.
		if s.fields[1]&(1<<uint(cand.Hour())) == 0 {
			cand = cand.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		cand = cand.Add(time.Minute)
	}
	return time.Time{}, false
}

func parseField(field string, min, max int, name string) (uint64, error) {
	if field == "*" {
		return rangeMask(min, max), nil
	}
	if rest, ok := strings.CutPrefix(field, "*/"); ok {
		step, err := strconv.Atoi(rest)
		if err != nil || step <= 0 {
			return 0, fmt.Errorf("invalid step value in %s field: %s", name, field)
		}
		var mask uint64
		for v := min; v <= max; v++ {
			if v%step == 0 {
				mask |= 1 << uint(v)
			}
		}
		return mask, nil
	}
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			low, err1 := strconv.Atoi(bounds[0])
			high, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return 0, fmt.Errorf("invalid range in %s field: %s", name, part)
			}
			if low < min || high > max || low > high {
				return 0, fmt.Errorf("range out of bounds in %s field: %s (allowed %d-%d)", name, part, min, max)
			}
			mask |= rangeMask(low, high)
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value in %s field: %s", name, part)
		}
		if n < min || n > max {
			return 0, fmt.Errorf("value out of range in %s field: %d (allowed %d-%d)", name, n, min, max)
		}
		mask |= 1 << uint(n)
	}
	return mask, nil
}

func rangeMask(low, high int) uint64 {
	var mask uint64
	for v := low; v <= high; v++ {
		mask |= 1 << uint(v)
	}
	return mask
}

// ValidateName enforces the job-name rules: non-empty, at most 64 chars,
// alphanumeric, underscore, hyphen, or whitespace only.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("cron name must not be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("cron name exceeds 64 characters")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("cron name must not start with '-'")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == ' ' || r == '\t':
		default:
			return fmt.Errorf("cron name contains invalid character %q", r)
		}
	}
	return nil
}
