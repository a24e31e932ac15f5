package customers

import (
	"context"
	"regexp"
	"strings"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

var mobilePattern = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

// Service handles customer masterdata operations.
type Service struct {
	repo  Repository
	guard *scope.Guard
}

// NewService builds Service.
func NewService(repo Repository, guard *scope.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

// List returns customers in the principal's accessible branches.
func (s *Service) List(ctx context.Context, p rbac.Principal, filters mdshared.ListFilters) ([]Customer, int, error) {
	branchIDs, err := s.guard.Filter(ctx, p, filters.BranchIDs)
	if err != nil {
		return nil, 0, err
	}
	filters.BranchIDs = branchIDs
	return s.repo.List(ctx, filters)
}

// Get fetches one customer inside the principal's scope.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id int64) (Customer, error) {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if err := s.guard.Authorize(ctx, p, customer.BranchID); err != nil {
		return Customer{}, err
	}
	return customer, nil
}

// Create registers a customer in a branch.
func (s *Service) Create(ctx context.Context, p rbac.Principal, customer Customer) (Customer, error) {
	if !p.Can(rbac.CapCustomersManage) {
		return Customer{}, shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, customer.BranchID); err != nil {
		return Customer{}, err
	}
	if err := s.validate(customer); err != nil {
		return Customer{}, err
	}
	return s.repo.Create(ctx, customer)
}

// Update edits a customer record. Issued invoices are unaffected: they
// snapshot customer fields at creation time.
func (s *Service) Update(ctx context.Context, p rbac.Principal, id int64, customer Customer) error {
	if !p.Can(rbac.CapCustomersManage) {
		return shared.ErrUnauthorized
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.Authorize(ctx, p, existing.BranchID); err != nil {
		return err
	}
	if err := s.validate(customer); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, customer)
}

func (s *Service) validate(c Customer) error {
	if strings.TrimSpace(c.FirstName) == "" {
		return shared.NewValidationError("first_name", "is required")
	}
	if !mobilePattern.MatchString(c.Mobile) {
		return shared.NewValidationError("mobile", "must be a valid mobile number")
	}
	if c.StateCode != "" && (len(c.StateCode) != 2 || c.StateCode[0] < '0' || c.StateCode[0] > '9' || c.StateCode[1] < '0' || c.StateCode[1] > '9') {
		return shared.NewValidationError("state_code", "must be a 2-digit GST state code")
	}
	return nil
}
