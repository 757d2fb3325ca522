package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Occupied is the calculator's view of an appointment that holds a slot: just
// the interval, already filtered to occupying statuses by the caller.
type Occupied struct {
	Date  time.Time
	Start TimeOfDay
	End   TimeOfDay
}

// AvailableSlots subtracts occupied intervals from the grid for every date in
// the inclusive [from, to] range and returns the open slots in chronological
// order, grouped by date. Read-only; safe for concurrent callers.
//
// Matching is exact on the interval boundaries for grid-aligned bookings. Rows
// whose boundaries do not align to the grid (legacy or externally inserted
// data) are handled by interval-overlap fallback: every grid slot they touch
// is treated as occupied, so a contended slot is never reported free.
func AvailableSlots(doctorID uuid.UUID, from, to time.Time, policy WorkingHoursPolicy, occupied []Occupied) []Slot {
	byDate := make(map[string][]Occupied, len(occupied))
	for _, o := range occupied {
		k := DateKey(o.Date)
		byDate[k] = append(byDate[k], o)
	}

	var open []Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		taken := byDate[DateKey(d)]
		for _, slot := range Grid(doctorID, d, policy) {
			if !slotOccupied(slot, taken) {
				open = append(open, slot)
			}
		}
	}
	return open
}

func slotOccupied(s Slot, taken []Occupied) bool {
	for _, o := range taken {
		if o.Start == s.Start && o.End == s.End {
			return true
		}
		// overlap fallback for misaligned rows
		if o.Start < s.End && s.Start < o.End {
			return true
		}
	}
	return false
}
