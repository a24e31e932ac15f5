package rbac

// Role represents a high-level permission grouping.
type Role string

const (
	// RoleOwner has full access to all branches in the organization.
	RoleOwner Role = "OWNER"
	// RoleManager has full access to assigned branches.
	RoleManager Role = "MANAGER"
	// RoleReceptionist creates jobs and manages customers.
	RoleReceptionist Role = "RECEPTIONIST"
	// RoleTechnician works assigned jobs and records diagnosis.
	RoleTechnician Role = "TECHNICIAN"
	// RoleAccountant handles billing, payments and reports.
	RoleAccountant Role = "ACCOUNTANT"
)

// Capability represents an atomic permission.
type Capability string

const (
	CapJobsCreate         Capability = "jobs.create"
	CapJobsTransition     Capability = "jobs.transition"
	CapJobsOverride       Capability = "jobs.transition.override"
	CapJobsAssign         Capability = "jobs.assign"
	CapJobsDeliver        Capability = "jobs.deliver"
	CapJobsPasswordAccess Capability = "jobs.password.access"
	CapPartsRequest       Capability = "parts.request"
	CapPartsApprove       Capability = "parts.approve"
	CapInventoryView      Capability = "inventory.view"
	CapInventoryAdjust    Capability = "inventory.adjust"
	CapBillingCreate      Capability = "billing.create"
	CapBillingFinalize    Capability = "billing.finalize"
	CapBillingPayment     Capability = "billing.payment"
	CapBillingCancel      Capability = "billing.cancel"
	CapCustomersManage    Capability = "customers.manage"
	CapBranchesManage     Capability = "branches.manage"
	CapAuditView          Capability = "audit.view"
)

// roleCapabilities is the single source of truth for what each role may do.
var roleCapabilities = map[Role][]Capability{
	RoleOwner: {
		CapJobsCreate, CapJobsTransition, CapJobsOverride, CapJobsAssign,
		CapJobsDeliver, CapJobsPasswordAccess, CapPartsRequest, CapPartsApprove,
		CapInventoryView, CapInventoryAdjust, CapBillingCreate, CapBillingFinalize,
		CapBillingPayment, CapBillingCancel, CapCustomersManage, CapBranchesManage,
		CapAuditView,
	},
	RoleManager: {
		CapJobsCreate, CapJobsTransition, CapJobsOverride, CapJobsAssign,
		CapJobsDeliver, CapJobsPasswordAccess, CapPartsRequest, CapPartsApprove,
		CapInventoryView, CapInventoryAdjust, CapBillingCreate, CapBillingFinalize,
		CapBillingPayment, CapBillingCancel, CapCustomersManage, CapAuditView,
	},
	RoleReceptionist: {
		CapJobsCreate, CapJobsTransition, CapJobsDeliver,
		CapInventoryView, CapCustomersManage,
	},
	RoleTechnician: {
		CapJobsTransition, CapJobsPasswordAccess, CapPartsRequest, CapInventoryView,
	},
	RoleAccountant: {
		CapInventoryView, CapBillingCreate, CapBillingFinalize,
		CapBillingPayment, CapBillingCancel, CapAuditView,
	},
}

// Principal describes an authenticated actor with the capability set
// resolved once per request. It is passed by value through every engine
// call; there is no ambient role lookup anywhere else.
type Principal struct {
	UserID         int64
	OrganizationID int64
	Role           Role
	BranchIDs      []int64

	caps map[Capability]struct{}
}

// NewPrincipal resolves the capability set for the given role.
func NewPrincipal(userID, organizationID int64, role Role, branchIDs []int64) Principal {
	caps := make(map[Capability]struct{})
	for _, c := range roleCapabilities[role] {
		caps[c] = struct{}{}
	}
	return Principal{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		BranchIDs:      branchIDs,
		caps:           caps,
	}
}

// Can reports whether the principal holds the capability.
func (p Principal) Can(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

// IsOwner reports whether the principal owns the organization.
func (p Principal) IsOwner() bool {
	return p.Role == RoleOwner
}

// ValidRole reports whether the role is one of the known roles.
func ValidRole(r Role) bool {
	_, ok := roleCapabilities[r]
	return ok
}
