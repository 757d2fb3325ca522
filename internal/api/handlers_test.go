package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/billing"
	"github.com/telecare/booking-engine/internal/lock"
	"github.com/telecare/booking-engine/internal/schedule"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	policy := schedule.WorkingHoursPolicy{
		DailyStart:   schedule.MustTimeOfDay("09:00"),
		DailyEnd:     schedule.MustTimeOfDay("21:00"),
		SlotDuration: 60,
	}
	locker := lock.NewLocalLocker()

	billingRepo := billing.NewMemoryRepository()
	agg := billing.NewAggregator(billingRepo, locker, billing.Config{
		RatePerAppointment: 100,
		Currency:           "USD",
		Mode:               billing.ModeAccumulate,
	})

	apptRepo := appointment.NewMemoryRepository()
	svc := appointment.NewService(apptRepo, locker, appointment.StaticPolicy{Policy: policy}, agg)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Appointments: svc,
		Billing:      agg,
		Env:          "test",
		Version:      "test",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func reserveReq(doctorID, patientID uuid.UUID, start, end string) ReserveAppointmentRequest {
	return ReserveAppointmentRequest{
		DoctorID:         doctorID.String(),
		PatientID:        patientID.String(),
		Date:             "2025-08-12",
		Start:            start,
		End:              end,
		ConsultationType: "video",
	}
}

func TestAvailabilityEndpointFullDay(t *testing.T) {
	srv := newTestServer(t)
	doctorID := uuid.New()

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/doctors/"+doctorID.String()+"/availability?from=2025-08-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(body, &avail))
	require.Len(t, avail.Slots, 12)
	assert.Equal(t, "09:00", avail.Slots[0].Start)
	assert.Equal(t, "21:00", avail.Slots[11].End)
}

func TestReserveThenConflictThenCancelFreesSlot(t *testing.T) {
	srv := newTestServer(t)
	doctorID := uuid.New()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/appointments",
		reserveReq(doctorID, uuid.New(), "10:00", "11:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(body, &appt))
	assert.Equal(t, "scheduled", appt.Status)

	// booked slot no longer offered
	resp, body = doJSON(t, http.MethodGet,
		srv.URL+"/doctors/"+doctorID.String()+"/availability?from=2025-08-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(body, &avail))
	assert.Len(t, avail.Slots, 11)

	// second reserve for the same slot conflicts
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/appointments",
		reserveReq(doctorID, uuid.New(), "10:00", "11:00"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr ErrorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, "slot_taken", apiErr.Error)

	// cancelling frees the slot again
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/appointments/"+appt.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet,
		srv.URL+"/doctors/"+doctorID.String()+"/availability?from=2025-08-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &avail))
	assert.Len(t, avail.Slots, 12)
}

func TestReserveOffGridRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/appointments",
		reserveReq(uuid.New(), uuid.New(), "10:30", "11:30"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var apiErr ErrorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, "invalid_slot", apiErr.Error)
}

func TestLifecycleAndInvoiceOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	doctorID := uuid.New()

	starts := []string{"09:00", "10:00", "11:00"}
	for _, start := range starts {
		end := fmt.Sprintf("%02d:00", schedule.MustTimeOfDay(start).Hour()+1)
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/appointments",
			reserveReq(doctorID, uuid.New(), start, end))
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var appt AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &appt))

		for _, step := range []string{"confirm", "start", "complete"} {
			resp, _ := doJSON(t, http.MethodPost,
				srv.URL+"/appointments/"+appt.ID.String()+"/"+step, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode, "step %s", step)
		}
	}

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/doctors/"+doctorID.String()+"/invoices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var invoices []InvoiceResponse
	require.NoError(t, json.Unmarshal(body, &invoices))
	require.Len(t, invoices, 1)
	assert.Equal(t, 300.0, invoices[0].Amount)

	// hydrated invoice has 3 line items
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/invoices/"+invoices[0].ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inv InvoiceResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Len(t, inv.LineItems, 3)

	// issue it, then issuing again conflicts
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/invoices/"+inv.ID.String()+"/issue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/invoices/"+inv.ID.String()+"/issue", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInvalidTransitionOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/appointments",
		reserveReq(uuid.New(), uuid.New(), "10:00", "11:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(body, &appt))

	// scheduled -> complete is not in the table
	resp, body = doJSON(t, http.MethodPost,
		srv.URL+"/appointments/"+appt.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var apiErr ErrorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, "invalid_status_transition", apiErr.Error)
}

func TestHealthEndpointsMemoryMode(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
}
