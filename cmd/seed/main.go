package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/db"
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

	doctors, err := seedDoctors(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedTodaysQueues(context.Background(), pool, doctors, patients); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"General Medicine",
		"Dermatology",
		"Cardiology",
		"Orthopedics",
		"Endocrinology",
		"Pediatrics",
		"ENT",
		"Ophthalmology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, phone)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedTodaysQueues fills each doctor's queue for today with tokenized
// waiting appointments, numbered and ordered the way the lifecycle service
// would have issued them.
func seedTodaysQueues(ctx context.Context, pool *pgxpool.Pool, doctors, patients []uuid.UUID) error {
	log.Printf("seeding today's queues for %d doctors", len(doctors))

	morning := time.Now().Truncate(24 * time.Hour).Add(9 * time.Hour)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, doctorID := range doctors {
		queueLen := gofakeit.Number(3, 12)
		for n := 1; n <= queueLen; n++ {
			patientID := patients[gofakeit.Number(0, len(patients)-1)]
			scheduledAt := morning.Add(time.Duration(n-1) * 15 * time.Minute)
			reason := gofakeit.SentenceSimple()

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, doctor_id, patient_id, scheduled_at, status, token_number, token_status, token_order, reason, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			`, uuid.New(), doctorID, patientID, scheduledAt,
				appointment.StatusQueue, n, appointment.TokenWaiting, n, reason)
			if err != nil {
				return err
			}
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}
