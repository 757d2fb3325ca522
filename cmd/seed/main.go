package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/db"
	"github.com/telecare/booking-engine/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, doctorIDs, patientIDs); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+gofakeit.Name(), specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedAppointments books roughly half of each doctor's grid for the next week
// so availability queries return something interesting out of the box.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctorIDs, patientIDs []uuid.UUID) error {
	policy := schedule.WorkingHoursPolicy{
		DailyStart:   schedule.MustTimeOfDay("09:00"),
		DailyEnd:     schedule.MustTimeOfDay("21:00"),
		SlotDuration: 60,
	}

	repo := appointment.NewPgRepository(pool)

	today := time.Now().Truncate(24 * time.Hour)
	total := 0
	for _, doctorID := range doctorIDs {
		for day := 0; day < 7; day++ {
			date := today.AddDate(0, 0, day)
			for _, slot := range schedule.Grid(doctorID, date, policy) {
				if gofakeit.Bool() {
					continue
				}

				patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
				status := appointment.StatusScheduled
				if gofakeit.Bool() {
					status = appointment.StatusConfirmed
				}

				_, err := repo.CreateOccupying(ctx, &appointment.Appointment{
					ID:               uuid.New(),
					DoctorID:         doctorID,
					PatientID:        patientID,
					Date:             date,
					Start:            slot.Start,
					End:              slot.End,
					Status:           status,
					ConsultationType: "video",
				})
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	log.Printf("seeded %d appointments", total)
	return nil
}
