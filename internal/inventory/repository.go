package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrItemNotFound    = fmt.Errorf("inventory item %w", apperr.ErrNotFound)
	ErrSerialNotFound  = fmt.Errorf("inventory serial %w", apperr.ErrNotFound)
	ErrDuplicateSerial = fmt.Errorf("serial number already exists: %w", apperr.ErrConflict)
)

// ItemFilter narrows item listings.
type ItemFilter struct {
	ClinicID   *uuid.UUID
	Category   *string
	UseInTrial *bool
	Search     string // product name, brand or model substring
	Limit      int
	Offset     int
}

// Repository contains all DB interactions needed by the inventory service.
// Mutating calls that touch both serials and item quantities run inside
// InTx so the two can never diverge.
type Repository interface {
	InTx(ctx context.Context, fn func(tx TxRepository) error) error

	GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, f ItemFilter) ([]Item, int, error)
	CreateItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, item *Item) error

	GetSerialByNumber(ctx context.Context, serialNumber string) (*Serial, error)
	ListSerialsByItem(ctx context.Context, itemID uuid.UUID) ([]Serial, error)
	ListTrialDeviceSerials(ctx context.Context, clinicID *uuid.UUID) ([]string, error)
}

// TxRepository is the transaction-scoped slice of the repository. Reads here
// take row locks; callers mutate and write back before the transaction ends.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	FindItemByIdentity(ctx context.Context, clinicID *uuid.UUID, productName, brand, modelType, category string) (*Item, error)
	SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	RecomputeItemQuantity(ctx context.Context, itemID uuid.UUID) (int, error)

	GetSerialForUpdate(ctx context.Context, serialNumber string) (*Serial, error)
	CreateSerial(ctx context.Context, s *Serial) error
	UpdateSerialStatus(ctx context.Context, serialID uuid.UUID, status SerialStatus) error
	ReassignSerials(ctx context.Context, fromItemID, toItemID uuid.UUID, serialNumbers []string) (int, error)

	CreateItem(ctx context.Context, item *Item) error
	InsertTransfer(ctx context.Context, t *Transfer) error
}
