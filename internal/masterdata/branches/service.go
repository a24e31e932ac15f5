package branches

import (
	"context"

	mdshared "github.com/fixdesk/fixdesk/internal/masterdata/shared"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// Service handles branch masterdata operations.
type Service struct {
	repo  Repository
	guard *scope.Guard
}

// NewService builds Service.
func NewService(repo Repository, guard *scope.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

// List returns branches visible to the principal.
func (s *Service) List(ctx context.Context, p rbac.Principal, filters mdshared.ListFilters) ([]Branch, int, error) {
	branchIDs, err := s.guard.Filter(ctx, p, filters.BranchIDs)
	if err != nil {
		return nil, 0, err
	}
	filters.BranchIDs = branchIDs
	filters.OrganizationID = &p.OrganizationID
	return s.repo.List(ctx, filters)
}

// Get fetches one branch inside the principal's scope.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id int64) (Branch, error) {
	if err := s.guard.Authorize(ctx, p, id); err != nil {
		return Branch{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new branch for the principal's organization.
func (s *Service) Create(ctx context.Context, p rbac.Principal, branch Branch) (Branch, error) {
	if !p.Can(rbac.CapBranchesManage) {
		return Branch{}, shared.ErrUnauthorized
	}
	branch.OrganizationID = p.OrganizationID
	if branch.InvoicePrefix == "" {
		branch.InvoicePrefix = "INV"
	}
	if branch.JobPrefix == "" {
		branch.JobPrefix = "JC"
	}
	if err := s.validate(branch); err != nil {
		return Branch{}, err
	}
	return s.repo.Create(ctx, branch)
}

// Update edits branch settings inside the principal's scope.
func (s *Service) Update(ctx context.Context, p rbac.Principal, id int64, branch Branch) error {
	if !p.Can(rbac.CapBranchesManage) {
		return shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, id); err != nil {
		return err
	}
	if err := s.validate(branch); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, branch)
}

// Deactivate retires a branch. Historical documents keep referencing it.
func (s *Service) Deactivate(ctx context.Context, p rbac.Principal, id int64) error {
	if !p.Can(rbac.CapBranchesManage) {
		return shared.ErrUnauthorized
	}
	if err := s.guard.Authorize(ctx, p, id); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, id)
}
