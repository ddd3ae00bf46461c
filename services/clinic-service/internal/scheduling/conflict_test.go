package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"
)

// threeCaseOverlap mirrors the persisted query's three explicit cases:
// existing contains the new start, existing contains the new end, or the
// new interval contains the existing one.
func threeCaseOverlap(existStart, existEnd, newStart, newEnd time.Time) bool {
	if !existStart.After(newStart) && existEnd.After(newStart) {
		return true
	}
	if existStart.Before(newEnd) && !existEnd.Before(newEnd) {
		return true
	}
	if !existStart.Before(newStart) && !existEnd.After(newEnd) {
		return true
	}
	return false
}

func TestOverlaps_MatchesThreeCaseForm(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10000; i++ {
		s1 := base.Add(time.Duration(rng.Intn(480)) * time.Minute)
		e1 := s1.Add(time.Duration(1+rng.Intn(120)) * time.Minute)
		s2 := base.Add(time.Duration(rng.Intn(480)) * time.Minute)
		e2 := s2.Add(time.Duration(1+rng.Intn(120)) * time.Minute)

		formula := Overlaps(s1, e1, s2, e2)
		cases := threeCaseOverlap(s1, e1, s2, e2)
		if formula != cases {
			t.Fatalf("verdicts disagree for [%s,%s) vs [%s,%s): formula=%v cases=%v",
				s1.Format("15:04"), e1.Format("15:04"), s2.Format("15:04"), e2.Format("15:04"), formula, cases)
		}
	}
}

func TestOverlaps_AbuttingIntervalsDoNotConflict(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	nine := day.Add(9 * time.Hour)
	nineThirty := nine.Add(30 * time.Minute)
	ten := nine.Add(time.Hour)

	if !Overlaps(nine, nineThirty, nine.Add(15*time.Minute), nine.Add(45*time.Minute)) {
		t.Fatal("expected [09:00,09:30) and [09:15,09:45) to overlap")
	}
	if Overlaps(nine, nineThirty, nineThirty, ten) {
		t.Fatal("expected abutting [09:00,09:30) and [09:30,10:00) not to overlap")
	}
}

type stubOverlapStore struct {
	count int
	err   error
}

func (s stubOverlapStore) CountOverlapping(context.Context, string, time.Time, time.Time) (int, error) {
	return s.count, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetector_ReportsConflict(t *testing.T) {
	d := NewDetector(stubOverlapStore{count: 1}, discardLogger(), FailClosed)
	got, err := d.HasConflict(context.Background(), "doc-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatal("expected conflict")
	}
}

func TestDetector_FailClosedPropagatesStoreError(t *testing.T) {
	storeErr := errors.New("connection reset")
	d := NewDetector(stubOverlapStore{err: storeErr}, discardLogger(), FailClosed)
	_, err := d.HasConflict(context.Background(), "doc-1", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestDetector_FailOpenSwallowsStoreError(t *testing.T) {
	d := NewDetector(stubOverlapStore{err: errors.New("connection reset")}, discardLogger(), FailOpen)
	got, err := d.HasConflict(context.Background(), "doc-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error in fail-open mode: %v", err)
	}
	if got {
		t.Fatal("fail-open must report no conflict on store error")
	}
}

func TestParseFailMode(t *testing.T) {
	if ParseFailMode("fail-open") != FailOpen {
		t.Fatal("expected fail-open")
	}
	if ParseFailMode("") != FailClosed {
		t.Fatal("expected default fail-closed")
	}
	if ParseFailMode("bogus") != FailClosed {
		t.Fatal("expected fail-closed for unknown value")
	}
}
