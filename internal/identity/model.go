package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of staff roles. Authorization goes through
// Role.Can, never through comparing role names as strings.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleClinicManager Role = "clinic_manager"
	RoleReceptionist  Role = "receptionist"
	RoleAudiologist   Role = "audiologist"
	RoleAuditor       Role = "auditor"
)

// Capability is a single permitted action.
type Capability string

const (
	CapManagePatients  Capability = "manage_patients"
	CapRunTrials       Capability = "run_trials"
	CapManageInventory Capability = "manage_inventory"
	CapTransferStock   Capability = "transfer_stock"
	CapViewBills       Capability = "view_bills"
	CapManageStaff     Capability = "manage_staff"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManagePatients:  true,
		CapRunTrials:       true,
		CapManageInventory: true,
		CapTransferStock:   true,
		CapViewBills:       true,
		CapManageStaff:     true,
	},
	RoleClinicManager: {
		CapManagePatients:  true,
		CapRunTrials:       true,
		CapManageInventory: true,
		CapTransferStock:   true,
		CapViewBills:       true,
	},
	RoleReceptionist: {
		CapManagePatients: true,
		CapViewBills:      true,
	},
	RoleAudiologist: {
		CapManagePatients: true,
		CapRunTrials:      true,
		CapViewBills:      true,
	},
	RoleAuditor: {
		CapViewBills: true,
	},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role is allowed to perform the capability.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
}

type User struct {
	ID           uuid.UUID
	ClinicID     *uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
}
