package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientColumns = `
	id, clinic_id, name, age, dob, gender, email, phone_primary, phone_secondary,
	city, address, referral_type, referral_doctor, created_by, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&p.Age,
		&p.DOB,
		&p.Gender,
		&p.Email,
		&p.PhonePrimary,
		&p.PhoneSecondary,
		&p.City,
		&p.Address,
		&p.ReferralType,
		&p.ReferralDoctor,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

const visitColumns = `
	id, clinic_id, patient_id, seen_by, visit_type, service_type, present_complaint,
	test_requested, notes, status, status_note, appointment_date, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var status string
	var testRequested *string

	err := row.Scan(
		&v.ID,
		&v.ClinicID,
		&v.PatientID,
		&v.SeenBy,
		&v.VisitType,
		&v.ServiceType,
		&v.PresentComplaint,
		&testRequested,
		&v.Notes,
		&status,
		&v.StatusNote,
		&v.AppointmentDate,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	v.Status = VisitStatus(status)
	v.TestRequested = splitTests(testRequested)
	return &v, nil
}

// Tests are stored as a comma separated string, matching how the intake form
// submits them.
func splitTests(csv *string) []string {
	if csv == nil || *csv == "" {
		return nil
	}
	return strings.Split(*csv, ",")
}

func joinTests(tests []string) *string {
	if len(tests) == 0 {
		return nil
	}
	joined := strings.Join(tests, ",")
	return &joined
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, clinic_id, name, age, dob, gender, email, phone_primary,
			phone_secondary, city, address, referral_type, referral_doctor, created_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
	`, p.ID, p.ClinicID, p.Name, p.Age, p.DOB, p.Gender, p.Email, p.PhonePrimary,
		p.PhoneSecondary, p.City, p.Address, p.ReferralType, p.ReferralDoctor, p.CreatedBy)
	return err
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET name = $2, age = $3, dob = $4, gender = $5, email = $6, phone_primary = $7,
		    phone_secondary = $8, city = $9, address = $10, referral_type = $11,
		    referral_doctor = $12, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Age, p.DOB, p.Gender, p.Email, p.PhonePrimary,
		p.PhoneSecondary, p.City, p.Address, p.ReferralType, p.ReferralDoctor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) ListPatients(ctx context.Context, clinicID *uuid.UUID, search string) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE ($1::uuid IS NULL OR clinic_id = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR phone_primary LIKE '%' || $2 || '%')
		ORDER BY name
	`, clinicID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateVisit(ctx context.Context, v *Visit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visits (id, clinic_id, patient_id, seen_by, visit_type, service_type,
			present_complaint, test_requested, notes, status, status_note, appointment_date,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`, v.ID, v.ClinicID, v.PatientID, v.SeenBy, v.VisitType, v.ServiceType,
		v.PresentComplaint, joinTests(v.TestRequested), v.Notes, string(v.Status),
		v.StatusNote, v.AppointmentDate)
	return err
}

func (r *PgRepository) UpdateVisit(ctx context.Context, v *Visit) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE visits
		SET visit_type = $2, present_complaint = $3, test_requested = $4, notes = $5,
		    status = $6, status_note = $7, appointment_date = $8, updated_at = now()
		WHERE id = $1
	`, v.ID, v.VisitType, v.PresentComplaint, joinTests(v.TestRequested), v.Notes,
		string(v.Status), v.StatusNote, v.AppointmentDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitNotFound
	}
	return nil
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	return scanVisit(row)
}

func (r *PgRepository) ListVisits(ctx context.Context, f ListFilter) ([]VisitDetail, int, error) {
	var status, visitType *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	if f.VisitType != nil {
		visitType = f.VisitType
	}
	var apptDate *time.Time
	if f.AppointmentDate != nil {
		apptDate = f.AppointmentDate
	}

	const where = `
		WHERE ($1::uuid IS NULL OR v.clinic_id = $1)
		  AND ($2::text IS NULL OR v.status = $2)
		  AND ($3::text IS NULL OR v.visit_type = $3)
		  AND ($4::date IS NULL OR v.appointment_date = $4)
		  AND ($5 = '' OR p.name ILIKE '%' || $5 || '%' OR p.phone_primary LIKE '%' || $5 || '%')`

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM visits v
		JOIN patients p ON p.id = v.patient_id`+where,
		f.ClinicID, status, visitType, apptDate, f.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.clinic_id, v.patient_id, v.seen_by, v.visit_type, v.service_type,
		       v.present_complaint, v.test_requested, v.notes, v.status, v.status_note,
		       v.appointment_date, v.created_at, v.updated_at, p.name, p.phone_primary
		FROM visits v
		JOIN patients p ON p.id = v.patient_id`+where+`
		ORDER BY v.created_at DESC
		LIMIT $6 OFFSET $7
	`, f.ClinicID, status, visitType, apptDate, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []VisitDetail
	for rows.Next() {
		var d VisitDetail
		var statusStr string
		var testRequested *string

		err := rows.Scan(
			&d.ID, &d.ClinicID, &d.PatientID, &d.SeenBy, &d.VisitType, &d.ServiceType,
			&d.PresentComplaint, &testRequested, &d.Notes, &statusStr, &d.StatusNote,
			&d.AppointmentDate, &d.CreatedAt, &d.UpdatedAt, &d.PatientName, &d.PatientPhone,
		)
		if err != nil {
			return nil, 0, err
		}

		d.Status = VisitStatus(statusStr)
		d.TestRequested = splitTests(testRequested)
		result = append(result, d)
	}

	return result, total, rows.Err()
}

func (r *PgRepository) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM visits WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *v)
	}

	return result, total, rows.Err()
}

func (r *PgRepository) LatestVisit(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, patientID)
	return scanVisit(row)
}

func (r *PgRepository) CountVisits(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM visits WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}
