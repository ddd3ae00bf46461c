package availability

import "fmt"

// Clinic business hours are fixed: candidate slots start at 09:00 and new
// starts are generated up to (exclusive) 17:00.
const (
	openMinute  = 9 * 60
	closeMinute = 17 * 60
)

// Candidates returns candidate start times ("HH:MM") for a service of the
// given duration, strided by the duration itself from opening time. A
// duration that does not evenly divide the 480-minute day still yields its
// final slot even though that booking would run past closing; booking
// validation applies the same rule, so the two stay consistent.
func Candidates(durationMinutes int) []string {
	if durationMinutes <= 0 {
		return nil
	}
	var slots []string
	for m := openMinute; m < closeMinute; m += durationMinutes {
		slots = append(slots, clock(m))
	}
	return slots
}

// Filter returns candidates minus the booked set, preserving order.
func Filter(candidates []string, booked []string) []string {
	if len(booked) == 0 {
		return candidates
	}
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
