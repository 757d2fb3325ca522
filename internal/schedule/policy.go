package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrWindowInverted  = errors.New("daily start must be before daily end")
	ErrBadSlotDuration = errors.New("slot duration must be positive")
)

// WorkingHoursPolicy is the per-doctor (or global default) configuration that
// a day's grid is generated from.
type WorkingHoursPolicy struct {
	DailyStart   TimeOfDay `json:"daily_start"`
	DailyEnd     TimeOfDay `json:"daily_end"`
	SlotDuration int       `json:"slot_duration_minutes"`
}

func (p WorkingHoursPolicy) Validate() error {
	if p.DailyStart >= p.DailyEnd {
		return fmt.Errorf("%w: %s >= %s", ErrWindowInverted, p.DailyStart, p.DailyEnd)
	}
	if p.SlotDuration <= 0 {
		return fmt.Errorf("%w: %d", ErrBadSlotDuration, p.SlotDuration)
	}
	return nil
}

// SlotCount is the number of whole slots the window holds. A trailing partial
// window is dropped, never emitted as a short slot.
func (p WorkingHoursPolicy) SlotCount() int {
	if p.DailyStart >= p.DailyEnd || p.SlotDuration <= 0 {
		return 0
	}
	return (int(p.DailyEnd) - int(p.DailyStart)) / p.SlotDuration
}
