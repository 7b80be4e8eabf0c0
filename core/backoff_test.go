package core

import (
	"testing"
	"time"
)

func TestSchedulePolicy_TableProgression(t *testing.T) {
	policy := DefaultSchedulePolicy()
	expected := []time.Duration{
		time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		time.Hour,
		4 * time.Hour,
	}
	for index, want := range expected {
		if got := policy.NextDelay(index); got != want {
			t.Fatalf("delay at index %d: expected %v, got %v", index, want, got)
		}
	}
}

func TestSchedulePolicy_CapsBeyondTable(t *testing.T) {
	policy := DefaultSchedulePolicy()
	if got := policy.NextDelay(17); got != 4*time.Hour {
		t.Fatalf("expected cap at last table entry, got %v", got)
	}
}

func TestSchedulePolicy_ClampsNegativeIndex(t *testing.T) {
	policy := DefaultSchedulePolicy()
	if got := policy.NextDelay(-3); got != time.Minute {
		t.Fatalf("expected first table entry for negative index, got %v", got)
	}
}

func TestSchedulePolicy_CustomTable(t *testing.T) {
	policy := SchedulePolicy{Table: []time.Duration{time.Second, 2 * time.Second}}
	if got := policy.NextDelay(0); got != time.Second {
		t.Fatalf("expected custom first delay, got %v", got)
	}
	if got := policy.NextDelay(5); got != 2*time.Second {
		t.Fatalf("expected custom cap, got %v", got)
	}
}
