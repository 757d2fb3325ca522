package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a bookable half-open interval [Start, End) on a doctor's grid for
// one date. Slots are ephemeral: they are computed from the policy on demand
// and never stored; persistence only records what is booked.
type Slot struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     time.Time `json:"date"`
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
}

// DateKey normalizes a date to its calendar-day key, discarding the clock
// portion so map lookups and comparisons ignore time-of-day noise.
func DateKey(d time.Time) string {
	return d.Format("2006-01-02")
}

// Grid generates the ordered slot sequence for one doctor and date under the
// given policy. Pure and deterministic: same inputs, same sequence. A window
// shorter than one slot duration yields an empty grid.
func Grid(doctorID uuid.UUID, date time.Time, policy WorkingHoursPolicy) []Slot {
	n := policy.SlotCount()
	if n == 0 {
		return nil
	}

	slots := make([]Slot, 0, n)
	step := TimeOfDay(policy.SlotDuration)
	for start := policy.DailyStart; start+step <= policy.DailyEnd; start += step {
		slots = append(slots, Slot{
			DoctorID: doctorID,
			Date:     date,
			Start:    start,
			End:      start + step,
		})
	}
	return slots
}

// OnGrid reports whether [start, end) is exactly one of the slots the policy
// generates. Reservation validation goes through this rather than re-building
// the full grid.
func OnGrid(start, end TimeOfDay, policy WorkingHoursPolicy) bool {
	step := TimeOfDay(policy.SlotDuration)
	if end-start != step {
		return false
	}
	if start < policy.DailyStart || end > policy.DailyEnd {
		return false
	}
	return (start-policy.DailyStart)%step == 0
}
