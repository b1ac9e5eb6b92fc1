package trial

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decision is the closed set of trial workflow states and requested
// outcomes. FOLLOWUP is only ever a requested decision; a followed-up trial
// stays in TRIAL_ACTIVE with new dates.
type Decision string

const (
	DecisionTrialActive   Decision = "TRIAL_ACTIVE"
	DecisionBook          Decision = "BOOK"
	DecisionAwaitingStock Decision = "BOOK_AWAITING_STOCK"
	DecisionAllocated     Decision = "BOOK_ALLOCATED"
	DecisionFollowup      Decision = "FOLLOWUP"
	DecisionDecline       Decision = "DECLINE"
)

// Terminal reports whether the trial can take no further completion calls.
func (d Decision) Terminal() bool {
	return d == DecisionAllocated || d == DecisionDecline
}

const (
	EventTrialStarted    = "TRIAL_STARTED"
	EventTrialCompleted  = "TRIAL_COMPLETED"
	EventTrialExtended   = "TRIAL_EXTENDED"
	EventSerialAllocated = "SERIAL_ALLOCATED"
	EventDeviceReturned  = "DEVICE_RETURNED"
)

// Trial is one time-boxed device loan. Clinical fields are carried for the
// record and never interpreted by the workflow.
type Trial struct {
	ID           uuid.UUID
	ClinicID     *uuid.UUID
	VisitID      uuid.UUID
	PatientID    uuid.UUID
	DeviceItemID uuid.UUID
	SerialNumber string

	EarFitted        *string
	DomeType         *string
	GainSettings     *string
	SRTBefore        *string
	SDSBefore        *string
	UCLBefore        *string
	PatientResponse  *string
	CounsellingNotes *string

	TrialStartDate time.Time
	TrialEndDate   *time.Time
	FollowupDate   *time.Time
	ExtendedTrial  bool
	ExtendedAt     *time.Time

	Decision                Decision
	TrialCompletedAt        *time.Time
	ReturnNotes             *string
	DeviceConditionOnReturn *string

	BookedItemID       *uuid.UUID
	BookedSerialID     *uuid.UUID
	BookedSerialNumber *string

	CreatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Purchase is the append-only audit row written when a booking resolves to a
// sale.
type Purchase struct {
	ID         uuid.UUID
	ClinicID   *uuid.UUID
	PatientID  uuid.UUID
	VisitID    uuid.UUID
	ItemID     uuid.UUID
	SerialID   *uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

// Event is one audit log entry for a trial state change.
type Event struct {
	ID        int64
	EventType string
	TrialID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Detail is a trial hydrated with the names list endpoints show.
type Detail struct {
	Trial
	PatientName string
	ProductName string
	Brand       string
	ModelType   string
}
