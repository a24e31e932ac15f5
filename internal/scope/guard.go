// Package scope centralizes branch/tenant isolation. Every engine read or
// write resolves its branch through the Guard so isolation holds by
// construction rather than by per-endpoint convention.
package scope

import (
	"context"
	"errors"

	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// BranchDirectory lists branches per organization. Implemented by the
// branches repository.
type BranchDirectory interface {
	ListActiveIDsByOrganization(ctx context.Context, organizationID int64) ([]int64, error)
}

// Guard resolves and enforces a principal's accessible branch set.
type Guard struct {
	branches BranchDirectory
}

// NewGuard constructs a Guard.
func NewGuard(branches BranchDirectory) *Guard {
	return &Guard{branches: branches}
}

// AccessibleBranches returns the branch IDs the principal may touch.
// Owners see every active branch in their organization; all other roles
// see only their explicit assignments.
func (g *Guard) AccessibleBranches(ctx context.Context, p rbac.Principal) ([]int64, error) {
	if g == nil {
		return nil, errors.New("scope: guard not initialised")
	}
	if p.IsOwner() {
		if g.branches == nil {
			return nil, errors.New("scope: branch directory not configured")
		}
		return g.branches.ListActiveIDsByOrganization(ctx, p.OrganizationID)
	}
	ids := make([]int64, len(p.BranchIDs))
	copy(ids, p.BranchIDs)
	return ids, nil
}

// Authorize verifies branchID is inside the accessible set. Violations
// report shared.ErrNotFound, never a forbidden error, so cross-tenant
// probing cannot distinguish "exists" from "doesn't".
func (g *Guard) Authorize(ctx context.Context, p rbac.Principal, branchID int64) error {
	if branchID <= 0 {
		return shared.ErrNotFound
	}
	accessible, err := g.AccessibleBranches(ctx, p)
	if err != nil {
		return err
	}
	for _, id := range accessible {
		if id == branchID {
			return nil
		}
	}
	return shared.ErrNotFound
}

// Filter narrows a requested branch set to the accessible subset. An
// empty request means "everything I can see".
func (g *Guard) Filter(ctx context.Context, p rbac.Principal, requested []int64) ([]int64, error) {
	accessible, err := g.AccessibleBranches(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return accessible, nil
	}
	allowed := make(map[int64]struct{}, len(accessible))
	for _, id := range accessible {
		allowed[id] = struct{}{}
	}
	var out []int64
	for _, id := range requested {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, shared.ErrNotFound
	}
	return out, nil
}
