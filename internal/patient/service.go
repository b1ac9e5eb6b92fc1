package patient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrInvalidPhone   = fmt.Errorf("phone must be exactly 10 digits: %w", apperr.ErrInvalid)
	ErrNoVisitDetails = fmt.Errorf("at least one visit record is required: %w", apperr.ErrInvalid)
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// VisitInput is one visit record in a registration or follow-on visit payload.
type VisitInput struct {
	VisitType        string
	PresentComplaint string
	TestRequested    []string
	Notes            *string
	SeenBy           *uuid.UUID
}

type RegisterPatientParams struct {
	ClinicID        *uuid.UUID
	CreatedBy       *uuid.UUID
	Name            string
	Age             int
	DOB             time.Time
	Gender          string
	Email           *string
	PhonePrimary    string
	PhoneSecondary  *string
	City            string
	Address         string
	ReferralType    *string
	ReferralDoctor  *string
	ServiceType     *string
	AppointmentDate *time.Time
	Visits          []VisitInput
}

// RegisterPatient creates a patient together with one or more initial visit
// records. The initial visit status depends on the visit type: walk-in
// service visits go straight to the service queue, everything else waits for
// testing.
func (s *Service) RegisterPatient(ctx context.Context, p RegisterPatientParams) (*Patient, error) {
	if !phonePattern.MatchString(p.PhonePrimary) {
		return nil, ErrInvalidPhone
	}
	if p.PhoneSecondary != nil && *p.PhoneSecondary != "" && !phonePattern.MatchString(*p.PhoneSecondary) {
		return nil, ErrInvalidPhone
	}
	if len(p.Visits) == 0 {
		return nil, ErrNoVisitDetails
	}

	pat := &Patient{
		ID:             uuid.New(),
		ClinicID:       p.ClinicID,
		Name:           p.Name,
		Age:            p.Age,
		DOB:            p.DOB,
		Gender:         p.Gender,
		Email:          p.Email,
		PhonePrimary:   p.PhonePrimary,
		PhoneSecondary: p.PhoneSecondary,
		City:           p.City,
		Address:        p.Address,
		ReferralType:   p.ReferralType,
		ReferralDoctor: p.ReferralDoctor,
		CreatedBy:      p.CreatedBy,
	}

	if err := s.repo.CreatePatient(ctx, pat); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	if err := s.createVisits(ctx, pat, p.CreatedBy, p.ServiceType, p.AppointmentDate, p.Visits); err != nil {
		return nil, err
	}

	return pat, nil
}

type CreateVisitsParams struct {
	PatientID       uuid.UUID
	ClinicID        *uuid.UUID
	CreatedBy       *uuid.UUID
	ServiceType     *string
	AppointmentDate *time.Time
	Visits          []VisitInput
}

// CreateVisits adds one or more visits for an existing patient.
func (s *Service) CreateVisits(ctx context.Context, p CreateVisitsParams) ([]Visit, error) {
	if len(p.Visits) == 0 {
		return nil, ErrNoVisitDetails
	}

	pat, err := s.repo.GetPatientByID(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}

	clinicID := p.ClinicID
	if clinicID == nil {
		clinicID = pat.ClinicID
	}
	patCopy := *pat
	patCopy.ClinicID = clinicID

	if err := s.createVisits(ctx, &patCopy, p.CreatedBy, p.ServiceType, p.AppointmentDate, p.Visits); err != nil {
		return nil, err
	}

	visits, _, err := s.repo.ListVisitsByPatient(ctx, p.PatientID, len(p.Visits), 0)
	if err != nil {
		return nil, fmt.Errorf("reload visits: %w", err)
	}
	return visits, nil
}

func (s *Service) createVisits(ctx context.Context, pat *Patient, createdBy *uuid.UUID, serviceType *string, appointmentDate *time.Time, inputs []VisitInput) error {
	for _, in := range inputs {
		seenBy := in.SeenBy
		if seenBy == nil {
			seenBy = createdBy
		}

		visit := &Visit{
			ID:               uuid.New(),
			ClinicID:         pat.ClinicID,
			PatientID:        pat.ID,
			SeenBy:           seenBy,
			VisitType:        in.VisitType,
			ServiceType:      serviceType,
			PresentComplaint: in.PresentComplaint,
			TestRequested:    in.TestRequested,
			Notes:            in.Notes,
			Status:           InitialStatus(in.VisitType),
			AppointmentDate:  appointmentDate,
		}

		if err := s.repo.CreateVisit(ctx, visit); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
	}
	return nil
}

type UpdatePatientParams struct {
	Name           string
	Age            int
	DOB            time.Time
	Gender         string
	Email          *string
	PhonePrimary   string
	PhoneSecondary *string
	City           string
	Address        string
	ReferralType   *string
	ReferralDoctor *string
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, p UpdatePatientParams) (*Patient, error) {
	if !phonePattern.MatchString(p.PhonePrimary) {
		return nil, ErrInvalidPhone
	}

	pat, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pat.Name = p.Name
	pat.Age = p.Age
	pat.DOB = p.DOB
	pat.Gender = p.Gender
	pat.Email = p.Email
	pat.PhonePrimary = p.PhonePrimary
	pat.PhoneSecondary = p.PhoneSecondary
	pat.City = p.City
	pat.Address = p.Address
	pat.ReferralType = p.ReferralType
	pat.ReferralDoctor = p.ReferralDoctor

	if err := s.repo.UpdatePatient(ctx, pat); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}

	return pat, nil
}

type UpdateVisitParams struct {
	VisitType        string
	PresentComplaint string
	TestRequested    []string
	Notes            *string
	AppointmentDate  *time.Time
}

func (s *Service) UpdateVisit(ctx context.Context, id uuid.UUID, p UpdateVisitParams) (*Visit, error) {
	visit, err := s.repo.GetVisitByID(ctx, id)
	if err != nil {
		return nil, err
	}

	visit.VisitType = p.VisitType
	visit.PresentComplaint = p.PresentComplaint
	visit.TestRequested = p.TestRequested
	visit.Notes = p.Notes
	visit.AppointmentDate = p.AppointmentDate

	if err := s.repo.UpdateVisit(ctx, visit); err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}

	return visit, nil
}

// GetPatientDetail returns a patient with their latest visit and visit count.
func (s *Service) GetPatientDetail(ctx context.Context, id uuid.UUID) (*PatientDetail, error) {
	pat, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &PatientDetail{Patient: *pat}

	latest, err := s.repo.LatestVisit(ctx, id)
	if err != nil && !errors.Is(err, ErrVisitNotFound) {
		return nil, fmt.Errorf("latest visit: %w", err)
	}
	detail.LatestVisit = latest

	count, err := s.repo.CountVisits(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}
	detail.TotalVisits = count

	return detail, nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetVisitByID(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, f ListFilter) ([]VisitDetail, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListVisits(ctx, f)
}

func (s *Service) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListVisitsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPatients(ctx context.Context, clinicID *uuid.UUID, search string) ([]Patient, error) {
	return s.repo.ListPatients(ctx, clinicID, search)
}
