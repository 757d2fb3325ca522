package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/booking-engine/internal/lock"
	"github.com/telecare/booking-engine/internal/schedule"
)

var _ CompletionListener = (*mockCompletionListener)(nil)

type mockCompletionListener struct {
	mu        sync.Mutex
	completed []Appointment
	err       error
}

func (m *mockCompletionListener) AppointmentCompleted(ctx context.Context, appt Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.completed = append(m.completed, appt)
	return nil
}

func (m *mockCompletionListener) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

func testPolicy() schedule.WorkingHoursPolicy {
	return schedule.WorkingHoursPolicy{
		DailyStart:   schedule.MustTimeOfDay("09:00"),
		DailyEnd:     schedule.MustTimeOfDay("21:00"),
		SlotDuration: 60,
	}
}

func newTestService(listener CompletionListener) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, lock.NewLocalLocker(), StaticPolicy{Policy: testPolicy()}, listener)
	return svc, repo
}

func testDate() time.Time {
	return time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC)
}

func reserveAt(t *testing.T, svc *Service, doctorID uuid.UUID, start string) *Appointment {
	t.Helper()
	s := schedule.MustTimeOfDay(start)
	appt, err := svc.Reserve(context.Background(), ReserveParams{
		DoctorID:         doctorID,
		PatientID:        uuid.New(),
		Date:             testDate(),
		Start:            s,
		End:              s + 60,
		ConsultationType: "video",
	})
	require.NoError(t, err)
	return appt
}

func TestReserveCreatesScheduledAppointment(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()

	appt := reserveAt(t, svc, doctorID, "10:00")

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, doctorID, appt.DoctorID)
	assert.Equal(t, "10:00", appt.Start.String())
	assert.Equal(t, "11:00", appt.End.String())
}

func TestReservePreAuthorizedCreatesConfirmed(t *testing.T) {
	svc, _ := newTestService(nil)

	appt, err := svc.Reserve(context.Background(), ReserveParams{
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		Date:          testDate(),
		Start:         schedule.MustTimeOfDay("10:00"),
		End:           schedule.MustTimeOfDay("11:00"),
		PreAuthorized: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestReserveRejectsOffGridInterval(t *testing.T) {
	svc, _ := newTestService(nil)

	cases := []struct{ start, end string }{
		{"10:30", "11:30"}, // off-step
		{"10:00", "10:30"}, // wrong duration
		{"08:00", "09:00"}, // before window
		{"21:00", "22:00"}, // after window
	}
	for _, c := range cases {
		_, err := svc.Reserve(context.Background(), ReserveParams{
			DoctorID:  uuid.New(),
			PatientID: uuid.New(),
			Date:      testDate(),
			Start:     schedule.MustTimeOfDay(c.start),
			End:       schedule.MustTimeOfDay(c.end),
		})
		assert.ErrorIs(t, err, ErrInvalidSlot, "%s-%s", c.start, c.end)
	}
}

func TestReserveTakenSlotFails(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()

	first := reserveAt(t, svc, doctorID, "10:00")
	_, err := svc.Confirm(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveParams{
		DoctorID:  doctorID,
		PatientID: uuid.New(),
		Date:      testDate(),
		Start:     schedule.MustTimeOfDay("10:00"),
		End:       schedule.MustTimeOfDay("11:00"),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestReserveSameSlotDifferentDoctorsBothSucceed(t *testing.T) {
	svc, _ := newTestService(nil)

	reserveAt(t, svc, uuid.New(), "10:00")
	reserveAt(t, svc, uuid.New(), "10:00")
}

func TestConcurrentReservesExactlyOneWins(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), ReserveParams{
				DoctorID:  doctorID,
				PatientID: uuid.New(),
				Date:      testDate(),
				Start:     schedule.MustTimeOfDay("10:00"),
				End:       schedule.MustTimeOfDay("11:00"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, taken int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, taken)
}

func TestReserveIdempotencyKeyReturnsOriginal(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()
	patientID := uuid.New()

	params := ReserveParams{
		DoctorID:       doctorID,
		PatientID:      patientID,
		Date:           testDate(),
		Start:          schedule.MustTimeOfDay("10:00"),
		End:            schedule.MustTimeOfDay("11:00"),
		IdempotencyKey: "retry-abc",
	}

	first, err := svc.Reserve(context.Background(), params)
	require.NoError(t, err)

	second, err := svc.Reserve(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAvailabilityExcludesOccupyingStatuses(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()

	appt := reserveAt(t, svc, doctorID, "10:00")
	_, err := svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)

	open, err := svc.Availability(context.Background(), doctorID, testDate(), testDate())
	require.NoError(t, err)

	require.Len(t, open, 11)
	for _, s := range open {
		assert.NotEqual(t, schedule.MustTimeOfDay("10:00"), s.Start)
	}
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	svc, _ := newTestService(nil)
	doctorID := uuid.New()

	appt := reserveAt(t, svc, doctorID, "10:00")

	_, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	open, err := svc.Availability(context.Background(), doctorID, testDate(), testDate())
	require.NoError(t, err)
	assert.Len(t, open, 12)

	// and the slot can actually be taken again
	reserveAt(t, svc, doctorID, "10:00")
}

func TestHappyPathLifecycle(t *testing.T) {
	listener := &mockCompletionListener{}
	svc, _ := newTestService(listener)

	appt := reserveAt(t, svc, uuid.New(), "10:00")

	appt, err := svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	appt, err = svc.Start(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, appt.Status)

	appt, err = svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)

	assert.Equal(t, 1, listener.count())
}

func TestInvalidTransitionsRejectedAndStatusUnchanged(t *testing.T) {
	svc, repo := newTestService(nil)

	appt := reserveAt(t, svc, uuid.New(), "10:00")

	// scheduled cannot start or complete
	_, err := svc.Start(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	current, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, current.Status)
}

func TestTerminalStatesAcceptNoTransition(t *testing.T) {
	svc, _ := newTestService(nil)

	appt := reserveAt(t, svc, uuid.New(), "10:00")
	_, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	for name, op := range map[string]func(context.Context, uuid.UUID) (*Appointment, error){
		"confirm":  svc.Confirm,
		"start":    svc.Start,
		"complete": svc.Complete,
		"cancel":   svc.Cancel,
		"no_show":  svc.MarkNoShow,
	} {
		_, err := op(context.Background(), appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition, "op %s", name)
	}
}

func TestCompleteSurvivesBillingListenerFailure(t *testing.T) {
	listener := &mockCompletionListener{err: errors.New("billing store down")}
	svc, repo := newTestService(listener)

	appt := reserveAt(t, svc, uuid.New(), "10:00")
	_, err := svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), appt.ID)
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	current, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, current.Status)
}

func TestReserveRecordsEvent(t *testing.T) {
	svc, repo := newTestService(nil)

	appt := reserveAt(t, svc, uuid.New(), "10:00")

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentReserved, events[0].EventType)
	require.NotNil(t, events[0].AppointmentID)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)
}
