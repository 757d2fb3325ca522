package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/billing"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Billing      *billing.Aggregator
	PgPool       *pgxpool.Pool // nil in memory-store mode
	Redis        *redis.Client // nil in memory-store mode
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/doctors/{doctorID}/availability", availabilityHandler(cfg.Appointments))

	// Appointments
	r.Post("/appointments", reserveAppointmentHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Get("/doctors/{doctorID}/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Appointments.Confirm))
	r.Post("/appointments/{id}/start", transitionHandler(cfg.Appointments.Start))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Appointments.Complete))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Appointments.Cancel))
	r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Appointments.MarkNoShow))

	// Invoices
	r.Get("/doctors/{doctorID}/invoices", listInvoicesHandler(cfg.Billing))
	r.Get("/invoices/{id}", getInvoiceHandler(cfg.Billing))
	r.Post("/invoices/{id}/issue", invoiceStatusHandler(cfg.Billing.Issue))
	r.Post("/invoices/{id}/pay", invoiceStatusHandler(cfg.Billing.MarkPaid))
	r.Post("/invoices/{id}/void", invoiceStatusHandler(cfg.Billing.Void))

	return r
}
