package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

type StockType string

const (
	StockSerialized    StockType = "Serialized"
	StockNonSerialized StockType = "Non-Serialized"
)

// SerialStatus tracks where a physical unit currently is.
type SerialStatus string

const (
	SerialInStock SerialStatus = "In Stock"
	SerialOnTrial SerialStatus = "On Trial"
	SerialSold    SerialStatus = "Sold"
	SerialService SerialStatus = "Service"
	SerialLost    SerialStatus = "Lost"
)

var (
	ErrSerialNotInStock   = fmt.Errorf("serial is not in stock: %w", apperr.ErrConflict)
	ErrSerialNotOnTrial   = fmt.Errorf("serial is not on trial: %w", apperr.ErrConflict)
	ErrSerialNotSellable  = fmt.Errorf("serial cannot be sold from its current status: %w", apperr.ErrConflict)
	ErrSerialNotInService = fmt.Errorf("only serials under service can be restocked: %w", apperr.ErrConflict)
	ErrQuantityNegative   = fmt.Errorf("quantity would go negative: %w", apperr.ErrInsufficientStock)
)

type Item struct {
	ID              uuid.UUID
	ClinicID        *uuid.UUID
	MasterItemID    *uuid.UUID
	ProductName     string
	Brand           string
	ModelType       string
	Category        string
	SKU             *string
	StockType       StockType
	UnitPrice       decimal.Decimal
	QuantityInStock int
	ReorderLevel    int
	UseInTrial      bool
	Description     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Serial struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	SerialNumber string
	Status       SerialStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reserve transitions In Stock -> On Trial. This is the only way a serial
// becomes held against a trial.
func (s *Serial) Reserve() error {
	if s.Status != SerialInStock {
		return ErrSerialNotInStock
	}
	s.Status = SerialOnTrial
	return nil
}

// Release transitions On Trial -> In Stock, used when a trialed device comes
// back in working condition.
func (s *Serial) Release() error {
	if s.Status != SerialOnTrial {
		return ErrSerialNotOnTrial
	}
	s.Status = SerialInStock
	return nil
}

// Sell transitions to Sold. Allowed from On Trial (trial path) and from
// In Stock (walk-in purchase path).
func (s *Serial) Sell() error {
	if s.Status != SerialOnTrial && s.Status != SerialInStock {
		return ErrSerialNotSellable
	}
	s.Status = SerialSold
	return nil
}

// MarkService records a returned device that needs repair before restocking.
func (s *Serial) MarkService() error {
	if s.Status != SerialOnTrial && s.Status != SerialInStock {
		return ErrSerialNotOnTrial
	}
	s.Status = SerialService
	return nil
}

// MarkLost records a device that never came back.
func (s *Serial) MarkLost() {
	s.Status = SerialLost
}

// Restock returns a repaired unit from Service to In Stock.
func (s *Serial) Restock() error {
	if s.Status != SerialService {
		return ErrSerialNotInService
	}
	s.Status = SerialInStock
	return nil
}

// AdjustQuantity applies a delta to a non-serialized item's stock count,
// rejecting any change that would leave it negative. Serialized items never
// take direct adjustments; their count is recomputed from serial rows.
func (i *Item) AdjustQuantity(delta int) error {
	next := i.QuantityInStock + delta
	if next < 0 {
		return ErrQuantityNegative
	}
	i.QuantityInStock = next
	return nil
}

// Transfer is the audit row written when stock moves between clinics.
type Transfer struct {
	ID            uuid.UUID
	ItemName      string
	Category      string
	Brand         string
	Model         string
	FromClinicID  *uuid.UUID
	ToClinicID    uuid.UUID
	Quantity      int
	SerialNumbers []string
	TransferredBy *uuid.UUID
	Notes         string
	TransferredAt time.Time
}
