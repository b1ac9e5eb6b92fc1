package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/apperr"
	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
)

var (
	ErrTrialNotFound = fmt.Errorf("trial %w", apperr.ErrNotFound)
)

// ListFilter narrows trial listings.
type ListFilter struct {
	ClinicID *uuid.UUID
	Decision *Decision
	Search   string // patient name or serial number substring
	Limit    int
	Offset   int
}

// Store contains all DB interactions needed by the trial service. Every
// mutation of the trial lifecycle runs inside InTx; the TxStore reads take
// row locks so concurrent completions and reservations serialize instead of
// double-spending stock.
type Store interface {
	InTx(ctx context.Context, fn func(tx TxStore) error) error

	GetTrialByID(ctx context.Context, id uuid.UUID) (*Trial, error)
	GetActiveTrialByVisit(ctx context.Context, visitID uuid.UUID) (*Trial, error)
	ListTrials(ctx context.Context, f ListFilter) ([]Detail, int, error)
	ListAwaitingStock(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]Detail, int, error)

	// Worker queries: trials whose dates have come due, paired with the
	// visit status the due check expects.
	ListEndingOn(ctx context.Context, day time.Time) ([]Trial, error)
	ListFollowupOn(ctx context.Context, day time.Time) ([]Trial, error)
	// UpdateVisitStatusIf moves a visit from one status to another only if
	// it is still in the expected status, reporting whether it did.
	UpdateVisitStatusIf(ctx context.Context, visitID uuid.UUID, from, to patient.VisitStatus, note string) (bool, error)

	InsertEvent(ctx context.Context, ev *Event) error
}

// TxStore is the transaction-scoped store. ForUpdate reads lock the row for
// the remainder of the transaction.
type TxStore interface {
	GetTrialForUpdate(ctx context.Context, id uuid.UUID) (*Trial, error)
	GetLatestTrialBySerialForUpdate(ctx context.Context, serialNumber string) (*Trial, error)
	CreateTrial(ctx context.Context, t *Trial) error
	UpdateTrial(ctx context.Context, t *Trial) error

	GetVisit(ctx context.Context, id uuid.UUID) (*patient.Visit, error)
	SetVisitStatus(ctx context.Context, visitID uuid.UUID, status patient.VisitStatus, note string) error

	GetItemForUpdate(ctx context.Context, itemID uuid.UUID) (*inventory.Item, error)
	SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	RecomputeItemQuantity(ctx context.Context, itemID uuid.UUID) (int, error)
	GetSerialForUpdate(ctx context.Context, serialNumber string) (*inventory.Serial, error)
	SetSerialStatus(ctx context.Context, serialID uuid.UUID, status inventory.SerialStatus) error

	InsertPurchase(ctx context.Context, p *Purchase) error

	// Bills exposes the billing ledger bound to this same transaction, so
	// bill lines commit or roll back with the stock movement.
	Bills() billing.Ledger
}
