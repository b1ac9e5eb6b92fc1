package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineType categorizes a bill line.
type LineType string

const (
	LineTest     LineType = "Test"
	LineTrial    LineType = "Trial"
	LinePurchase LineType = "Purchase"
	LineService  LineType = "Service"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentPartial PaymentStatus = "Partial"
)

type Bill struct {
	ID             uuid.UUID
	ClinicID       *uuid.UUID
	VisitID        uuid.UUID
	BillNumber     string
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	PaymentStatus  PaymentStatus
	Notes          *string
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type BillItem struct {
	ID          uuid.UUID
	BillID      uuid.UUID
	ItemType    LineType
	TestTypeID  *uuid.UUID
	Description string
	Cost        decimal.Decimal
	Quantity    int
	CreatedAt   time.Time
}

// Total is the line's contribution to the bill.
func (bi BillItem) Total() decimal.Decimal {
	return bi.Cost.Mul(decimal.NewFromInt(int64(bi.Quantity)))
}

// TestType is a billable audiometric test with its configured price.
type TestType struct {
	ID        uuid.UUID
	Name      string
	Code      string
	Cost      decimal.Decimal
	CreatedAt time.Time
}

// BillDetail is a bill hydrated with its lines.
type BillDetail struct {
	Bill
	Items []BillItem
}

// Subtotal sums the line totals before discount.
func (d BillDetail) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range d.Items {
		sum = sum.Add(it.Total())
	}
	return sum
}
