package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/billing"
	"github.com/telecare/booking-engine/internal/schedule"
)

type ReserveAppointmentRequest struct {
	DoctorID         string `json:"doctor_id"`
	PatientID        string `json:"patient_id"`
	Date             string `json:"date"`  // YYYY-MM-DD
	Start            string `json:"start"` // HH:MM
	End              string `json:"end"`   // HH:MM
	ConsultationType string `json:"consultation_type"`
	PreAuthorized    bool   `json:"pre_authorized"`
}

type AppointmentResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	Date             string    `json:"date"`
	Start            string    `json:"start"`
	End              string    `json:"end"`
	Status           string    `json:"status"`
	ConsultationType string    `json:"consultation_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		Date:             schedule.DateKey(a.Date),
		Start:            a.Start.String(),
		End:              a.End.String(),
		Status:           string(a.Status),
		ConsultationType: a.ConsultationType,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type SlotResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Slots    []SlotResponse `json:"slots"`
}

type LineItemResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        float64   `json:"amount"`
	Quantity      int       `json:"quantity"`
	Description   string    `json:"description"`
	Voided        bool      `json:"voided,omitempty"`
}

type InvoiceResponse struct {
	ID          uuid.UUID          `json:"id"`
	DoctorID    uuid.UUID          `json:"doctor_id"`
	Amount      float64            `json:"amount"`
	Currency    string             `json:"currency"`
	Status      string             `json:"status"`
	InvoiceDate time.Time          `json:"invoice_date"`
	DueDate     time.Time          `json:"due_date"`
	LineItems   []LineItemResponse `json:"line_items,omitempty"`
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:          inv.ID,
		DoctorID:    inv.DoctorID,
		Amount:      inv.Amount,
		Currency:    inv.Currency,
		Status:      string(inv.Status),
		InvoiceDate: inv.InvoiceDate,
		DueDate:     inv.DueDate,
	}
	for _, it := range inv.LineItems {
		resp.LineItems = append(resp.LineItems, LineItemResponse{
			ID:            it.ID,
			AppointmentID: it.AppointmentID,
			Amount:        it.Amount,
			Quantity:      it.Quantity,
			Description:   it.Description,
			Voided:        it.Voided,
		})
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
