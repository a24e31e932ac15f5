package customers

import "time"

// Customer is a branch-scoped customer record. The same person may exist
// independently in several branches; invoices snapshot these fields at
// issue time instead of referencing them live.
type Customer struct {
	ID          int64     `json:"id"`
	BranchID    int64     `json:"branch_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Mobile      string    `json:"mobile"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Pincode     string    `json:"pincode"`
	StateCode   string    `json:"state_code"`
	GSTIN       string    `json:"gstin"`
	CompanyName string    `json:"company_name"`
	SMSEnabled  bool      `json:"sms_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName joins first and last names.
func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
