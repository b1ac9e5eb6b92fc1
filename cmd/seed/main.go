package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearwell/clinic-backend/internal/db"
	"github.com/hearwell/clinic-backend/internal/patient"
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

	schemaPath := os.Getenv("SEED_SCHEMA")
	if schemaPath == "" {
		schemaPath = "migrations/schema.sql"
	}
	if err := applySchema(context.Background(), pool, schemaPath); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	clinicIDs, err := seedClinics(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	userIDs, err := seedUsers(context.Background(), pool, clinicIDs)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedTestTypes(context.Background(), pool); err != nil {
		log.Fatalf("seed test types: %v", err)
	}
	itemIDs, err := seedInventory(context.Background(), pool, clinicIDs)
	if err != nil {
		log.Fatalf("seed inventory: %v", err)
	}
	if err := seedPatients(context.Background(), pool, clinicIDs, userIDs, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Printf("seed complete: %d clinics, %d users, %d items", len(clinicIDs), len(userIDs), len(itemIDs))
}

func applySchema(ctx context.Context, pool *pgxpool.Pool, path string) error {
	log.Printf("applying schema from %s", path)
	sql, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, string(sql))
	return err
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	names := []string{"HearWell Indiranagar", "HearWell Koramangala", "HearWell Whitefield"}
	log.Printf("seeding %d clinics", len(names))

	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO clinics (id, name, address, phone, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, id, name, gofakeit.Address().Address, gofakeit.Phone())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	log.Println("clinics seeded")
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID) ([]uuid.UUID, error) {
	// One of each role per clinic, password "hearwell123" for all of them.
	hash, err := bcrypt.GenerateFromPassword([]byte("hearwell123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	roles := []string{"admin", "clinic_manager", "audiologist", "receptionist"}
	log.Printf("seeding %d users", len(roles)*len(clinicIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ids []uuid.UUID
	for i, clinicID := range clinicIDs {
		for _, role := range roles {
			id := uuid.New()
			email := gofakeit.LetterN(6) + "." + role + string(rune('a'+i)) + "@hearwell.in"

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, clinic_id, name, email, password_hash, role, is_active, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, true, now())
			`, id, clinicID, gofakeit.Name(), email, string(hash), role)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("users seeded")
	return ids, nil
}

func seedTestTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := []struct {
		name string
		code string
		cost float64
	}{
		{"Pure Tone Audiometry", "PTA", 800},
		{"Impedance Audiometry", "IMP", 600},
		{"Speech Audiometry", "SA", 700},
		{"Otoacoustic Emissions", "OAE", 1200},
		{"BERA", "BERA", 2500},
		{"Hearing Aid Trial Fitting", "HAT", 500},
	}
	log.Printf("seeding %d test types", len(types))

	for _, t := range types {
		_, err := pool.Exec(ctx, `
			INSERT INTO test_types (id, name, code, cost, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), t.name, t.code, t.cost)
		if err != nil {
			return err
		}
	}

	log.Println("test types seeded")
	return nil
}

func seedInventory(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID) ([]uuid.UUID, error) {
	devices := []struct {
		product  string
		brand    string
		model    string
		price    float64
		serials  int
		trialDev bool
	}{
		{"Pure Charge&Go 7IX", "Signia", "RIC", 185000, 4, true},
		{"Pure Charge&Go 3IX", "Signia", "RIC", 95000, 4, true},
		{"Intent 4", "Oticon", "miniRITE", 145000, 3, true},
		{"Lumity L50", "Phonak", "RIC", 110000, 3, true},
		{"Key KS10", "Phonak", "BTE", 45000, 5, false},
	}
	consumables := []struct {
		product  string
		category string
		price    float64
		qty      int
	}{
		{"Battery Size 312", "Batteries", 250, 200},
		{"Battery Size 13", "Batteries", 250, 150},
		{"Open Dome 8mm", "Domes", 150, 80},
		{"Closed Dome 10mm", "Domes", 150, 60},
		{"Wax Guard Pack", "Accessories", 350, 40},
	}

	log.Printf("seeding inventory for %d clinics", len(clinicIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var itemIDs []uuid.UUID
	for _, clinicID := range clinicIDs {
		for _, d := range devices {
			itemID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO inventory_items (
					id, clinic_id, product_name, brand, model_type, category, stock_type,
					unit_price, quantity_in_stock, reorder_level, use_in_trial, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, 'Hearing Aids', 'Serialized', $6, $7, 2, $8, now(), now())
			`, itemID, clinicID, d.product, d.brand, d.model, d.price, d.serials, d.trialDev)
			if err != nil {
				return nil, err
			}
			itemIDs = append(itemIDs, itemID)

			for i := 0; i < d.serials; i++ {
				sn := d.brand[:2] + gofakeit.DigitN(10)
				_, err := tx.Exec(ctx, `
					INSERT INTO inventory_serials (id, item_id, serial_number, status, created_at, updated_at)
					VALUES ($1, $2, $3, 'In Stock', now(), now())
				`, uuid.New(), itemID, sn)
				if err != nil {
					return nil, err
				}
			}
		}

		for _, c := range consumables {
			itemID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO inventory_items (
					id, clinic_id, product_name, brand, category, stock_type,
					unit_price, quantity_in_stock, reorder_level, use_in_trial, created_at, updated_at
				) VALUES ($1, $2, $3, 'Generic', $4, 'Non-Serialized', $5, $6, 20, false, now(), now())
			`, itemID, clinicID, c.product, c.category, c.price, c.qty)
			if err != nil {
				return nil, err
			}
			itemIDs = append(itemIDs, itemID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("inventory seeded")
	return itemIDs, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, clinicIDs, userIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d patients", count)

	visitTypes := []string{
		"New Consultation", "New Consultation", "Follow Up",
		"TGA / Machine Check", "Battery Purchase", "Tip / Dome Change",
	}
	complaints := []string{
		"Difficulty hearing in noisy environments",
		"Ringing in the left ear",
		"Gradual hearing loss over two years",
		"Blocked sensation in right ear",
		"Asks for TV volume to be raised",
	}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			clinicID := clinicIDs[gofakeit.Number(0, len(clinicIDs)-1)]
			createdBy := userIDs[gofakeit.Number(0, len(userIDs)-1)]
			patientID := uuid.New()
			dob := gofakeit.DateRange(
				time.Now().AddDate(-85, 0, 0),
				time.Now().AddDate(-18, 0, 0),
			)
			age := int(time.Since(dob).Hours() / 24 / 365)

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (
					id, clinic_id, name, age, dob, gender, email, phone_primary,
					city, address, referral_type, created_by, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			`, patientID, clinicID, gofakeit.Name(), age, dob,
				gofakeit.RandomString([]string{"Male", "Female"}),
				gofakeit.Email(), gofakeit.DigitN(10),
				gofakeit.City(), gofakeit.Address().Address,
				gofakeit.RandomString([]string{"Doctor", "Walk In", "Online", "Camp"}),
				createdBy)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			visitType := visitTypes[gofakeit.Number(0, len(visitTypes)-1)]
			var serviceType *string
			status := patient.InitialStatus(visitType)
			if status == patient.StatusPendingForService {
				serviceType = &visitType
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO visits (
					id, clinic_id, patient_id, seen_by, visit_type, service_type,
					present_complaint, status, appointment_date, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			`, uuid.New(), clinicID, patientID, createdBy, visitType, serviceType,
				complaints[gofakeit.Number(0, len(complaints)-1)],
				string(status), time.Now().AddDate(0, 0, gofakeit.Number(-5, 5)))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
