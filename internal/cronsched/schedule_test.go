package cronsched

import (
	"testing"
	"time"
)

func TestParse_Wildcard(t *testing.T) {
	s, err := Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	now := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	if !s.Matches(now) {
		t.Error("wildcard schedule should match any minute")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"61 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"a * * * *",
		"*/0 * * * *",
		"5-2 * * * *",
	} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) should fail", expr)
		}
	}
}

func TestSchedule_Matches(t *testing.T) {
	s, err := Parse("30 9 * * 1-5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// 2026-03-16 is a Monday.
	if !s.Matches(time.Date(2026, 3, 16, 9, 30, 0, 0, time.UTC)) {
		t.Error("should match Monday 09:30")
	}
	if s.Matches(time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)) {
		t.Error("should not match Sunday")
	}
	if s.Matches(time.Date(2026, 3, 16, 9, 31, 0, 0, time.UTC)) {
		t.Error("should not match 09:31")
	}
}

func TestSchedule_StepAndList(t *testing.T) {
	s, err := Parse("*/15 0,12 1 * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	match := time.Date(2026, 5, 1, 12, 45, 0, 0, time.UTC)
	if !s.Matches(match) {
		t.Errorf("should match %v", match)
	}
	if s.Matches(time.Date(2026, 5, 1, 12, 20, 0, 0, time.UTC)) {
		t.Error("minute 20 is not a multiple of 15")
	}
	if s.Matches(time.Date(2026, 5, 2, 12, 45, 0, 0, time.UTC)) {
		t.Error("day 2 should not match")
	}
}

func TestSchedule_Next(t *testing.T) {
	s, err := Parse("0 0 * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	from := time.Date(2026, 8, 30, 13, 45, 12, 0, time.UTC)
	next, ok := s.Next(from)
	if !ok {
		t.Fatal("Next: no match found")
	}
	want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestSchedule_NextSkipsCurrentMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	from := time.Date(2026, 8, 30, 13, 45, 0, 0, time.UTC)
	next, ok := s.Next(from)
	if !ok {
		t.Fatal("Next: no match found")
	}
	if !next.After(from) {
		t.Errorf("Next = %v, must be strictly after %v", next, from)
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"ok", "job_1", "daily backup", "a-b"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	for _, name := range []string{"", "-bad", "semi;colon", "new\nline", string(long)} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) should fail", name)
		}
	}
}
