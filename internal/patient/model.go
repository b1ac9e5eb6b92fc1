package patient

import (
	"time"

	"github.com/google/uuid"
)

// VisitStatus is the closed set of visit workflow states. Every transition in
// the system goes through these constants; free-form status strings caused
// typo drift in an earlier revision of this product.
type VisitStatus string

const (
	StatusTestPending       VisitStatus = "Test Pending"
	StatusPendingForService VisitStatus = "Pending for Service"
	StatusTrialActive       VisitStatus = "Trial Active"
	StatusDecisionPending   VisitStatus = "Decision Pending"
	StatusFollowUp          VisitStatus = "Follow Up"
	StatusBookAwaitingStock VisitStatus = "Book - Awaiting Stock"
	StatusBookAllocated     VisitStatus = "Book - Device Allocated"
	StatusTrialNoDevice     VisitStatus = "Trial Completed - No Device"
	StatusCompleted         VisitStatus = "Completed"
)

// Terminal reports whether no further workflow operations may run against a
// visit in this status.
func (s VisitStatus) Terminal() bool {
	switch s {
	case StatusBookAllocated, StatusTrialNoDevice, StatusCompleted:
		return true
	}
	return false
}

// serviceVisitTypes are walk-in service visits that skip the test queue.
var serviceVisitTypes = map[string]bool{
	"TGA / Machine Check": true,
	"Battery Purchase":    true,
	"Tip / Dome Change":   true,
}

// InitialStatus derives the status a freshly created visit starts in.
func InitialStatus(visitType string) VisitStatus {
	if serviceVisitTypes[visitType] {
		return StatusPendingForService
	}
	return StatusTestPending
}

type Patient struct {
	ID             uuid.UUID
	ClinicID       *uuid.UUID
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
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Visit struct {
	ID               uuid.UUID
	ClinicID         *uuid.UUID
	PatientID        uuid.UUID
	SeenBy           *uuid.UUID
	VisitType        string
	ServiceType      *string
	PresentComplaint string
	TestRequested    []string
	Notes            *string
	Status           VisitStatus
	StatusNote       string
	AppointmentDate  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// VisitDetail is a visit hydrated with the patient fields list endpoints show.
type VisitDetail struct {
	Visit
	PatientName  string
	PatientPhone string
}

// PatientDetail is a patient with their most recent visit and visit count.
type PatientDetail struct {
	Patient
	LatestVisit *Visit
	TotalVisits int
}
