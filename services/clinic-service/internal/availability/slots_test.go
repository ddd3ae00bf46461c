package availability

import (
	"testing"
)

func TestCandidates_CountPerDuration(t *testing.T) {
	cases := []struct {
		duration int
		want     int
	}{
		{duration: 15, want: 32},
		{duration: 30, want: 16},
		{duration: 45, want: 11}, // ceil(480/45)
		{duration: 60, want: 8},
		{duration: 90, want: 6},
		{duration: 480, want: 1},
	}
	for _, tc := range cases {
		got := Candidates(tc.duration)
		if len(got) != tc.want {
			t.Fatalf("duration %d: expected %d candidates, got %d", tc.duration, tc.want, len(got))
		}
	}
}

func TestCandidates_BoundsAndOrder(t *testing.T) {
	slots := Candidates(30)
	if slots[0] != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
	if slots[len(slots)-1] != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", slots[len(slots)-1])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("slots out of order: %s before %s", slots[i-1], slots[i])
		}
	}
}

func TestCandidates_LastSlotMayRunPastClosing(t *testing.T) {
	// 45-minute stride: the final 16:30 start ends at 17:15, past closing.
	// The stride generator keeps it; the same rule applies at booking time.
	slots := Candidates(45)
	if slots[len(slots)-1] != "16:30" {
		t.Fatalf("expected final 16:30 slot, got %s", slots[len(slots)-1])
	}
}

func TestCandidates_InvalidDuration(t *testing.T) {
	if got := Candidates(0); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
	if got := Candidates(-30); got != nil {
		t.Fatalf("expected nil for negative duration, got %v", got)
	}
}

func TestFilter_RemovesBookedPreservingOrder(t *testing.T) {
	candidates := Candidates(60)
	booked := []string{"10:00", "14:00", "23:00"}

	got := Filter(candidates, booked)
	if len(got) != 6 {
		t.Fatalf("expected 6 free slots, got %d (%v)", len(got), got)
	}
	for _, s := range got {
		if s == "10:00" || s == "14:00" {
			t.Fatalf("booked slot %s not filtered", s)
		}
	}
	if got[0] != "09:00" || got[1] != "11:00" {
		t.Fatalf("ordering not preserved: %v", got)
	}
}

func TestFilter_NoBookings(t *testing.T) {
	candidates := Candidates(30)
	got := Filter(candidates, nil)
	if len(got) != len(candidates) {
		t.Fatalf("expected all %d candidates, got %d", len(candidates), len(got))
	}
}
