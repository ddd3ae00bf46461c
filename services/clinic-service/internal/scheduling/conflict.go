package scheduling

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect: s1 < e2 && s2 < e1. Exactly abutting intervals do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// FailMode controls how the detector treats a store error: fail-closed
// rejects the booking, fail-open logs and reports no conflict.
type FailMode string

const (
	FailClosed FailMode = "fail-closed"
	FailOpen   FailMode = "fail-open"
)

func ParseFailMode(raw string) FailMode {
	if strings.TrimSpace(strings.ToLower(raw)) == string(FailOpen) {
		return FailOpen
	}
	return FailClosed
}

// OverlapStore counts existing non-cancelled appointments for a doctor
// whose interval overlaps [start, end).
type OverlapStore interface {
	CountOverlapping(ctx context.Context, doctorID string, start, end time.Time) (int, error)
}

type Detector struct {
	store  OverlapStore
	logger *slog.Logger
	mode   FailMode
}

func NewDetector(store OverlapStore, logger *slog.Logger, mode FailMode) *Detector {
	if mode != FailOpen {
		mode = FailClosed
	}
	return &Detector{store: store, logger: logger, mode: mode}
}

// HasConflict reports whether the doctor already has a non-cancelled
// appointment overlapping [start, end).
func (d *Detector) HasConflict(ctx context.Context, doctorID string, start, end time.Time) (bool, error) {
	n, err := d.store.CountOverlapping(ctx, doctorID, start, end)
	if err != nil {
		if d.mode == FailOpen {
			d.logger.Warn("conflict check failed; treating as no conflict", "err", err, "doctor_id", doctorID)
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}
