package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrPatientNotFound = fmt.Errorf("patient %w", apperr.ErrNotFound)
	ErrVisitNotFound   = fmt.Errorf("visit %w", apperr.ErrNotFound)
)

// ListFilter narrows visit listings.
type ListFilter struct {
	ClinicID        *uuid.UUID
	Status          *VisitStatus
	VisitType       *string
	AppointmentDate *time.Time
	Search          string // patient name or primary phone, substring match
	Limit           int
	Offset          int
}

// Repository contains all DB interactions needed by the patient service.
type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, clinicID *uuid.UUID, search string) ([]Patient, error)

	CreateVisit(ctx context.Context, v *Visit) error
	UpdateVisit(ctx context.Context, v *Visit) error
	GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListVisits(ctx context.Context, f ListFilter) ([]VisitDetail, int, error)
	ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, int, error)
	LatestVisit(ctx context.Context, patientID uuid.UUID) (*Visit, error)
	CountVisits(ctx context.Context, patientID uuid.UUID) (int, error)
}
