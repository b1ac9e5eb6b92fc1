package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrUserNotFound   = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrClinicNotFound = fmt.Errorf("clinic %w", apperr.ErrNotFound)
	ErrEmailTaken     = fmt.Errorf("email already registered: %w", apperr.ErrConflict)
)

// Repository contains all DB interactions needed by the identity service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context, clinicID *uuid.UUID) ([]User, error)

	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	ListClinics(ctx context.Context) ([]Clinic, error)
}
