package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrBillNotFound     = fmt.Errorf("bill %w", apperr.ErrNotFound)
	ErrTestTypeNotFound = fmt.Errorf("test type %w", apperr.ErrNotFound)
)

// Ledger is the bill mutation surface. Other packages that bill inside
// their own transactions depend on this rather than the full Repository.
type Ledger interface {
	GetBillByVisit(ctx context.Context, visitID uuid.UUID) (*Bill, error)
	GetOrCreateBill(ctx context.Context, visitID uuid.UUID, clinicID, createdBy *uuid.UUID) (*Bill, error)
	AppendItem(ctx context.Context, item *BillItem) error
	SetDiscount(ctx context.Context, billID uuid.UUID, amount decimal.Decimal) error
	Recalculate(ctx context.Context, billID uuid.UUID) (*Bill, error)
	ListItems(ctx context.Context, billID uuid.UUID) ([]BillItem, error)
}

// Repository contains all DB interactions needed by the billing service.
type Repository interface {
	Ledger

	GetTestTypeByName(ctx context.Context, name string) (*TestType, error)
	ListTestTypes(ctx context.Context) ([]TestType, error)
}
