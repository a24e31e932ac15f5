package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/shared"
)

type staticDirectory struct {
	byOrg map[int64][]int64
}

func (d staticDirectory) ListActiveIDsByOrganization(ctx context.Context, orgID int64) ([]int64, error) {
	return d.byOrg[orgID], nil
}

func newTestGuard() *Guard {
	return NewGuard(staticDirectory{byOrg: map[int64][]int64{
		1: {10, 11, 12},
		2: {20},
	}})
}

func TestOwnerSeesAllOrganizationBranches(t *testing.T) {
	guard := newTestGuard()
	owner := rbac.NewPrincipal(1, 1, rbac.RoleOwner, nil)

	ids, err := guard.AccessibleBranches(context.Background(), owner)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{10, 11, 12}, ids)
}

func TestNonOwnerSeesOnlyAssignedBranches(t *testing.T) {
	guard := newTestGuard()
	tech := rbac.NewPrincipal(2, 1, rbac.RoleTechnician, []int64{11})

	ids, err := guard.AccessibleBranches(context.Background(), tech)
	require.NoError(t, err)
	require.Equal(t, []int64{11}, ids)

	require.NoError(t, guard.Authorize(context.Background(), tech, 11))
	require.ErrorIs(t, guard.Authorize(context.Background(), tech, 10), shared.ErrNotFound)
}

func TestOutOfScopeBranchMasksAsNotFound(t *testing.T) {
	guard := newTestGuard()
	owner := rbac.NewPrincipal(1, 1, rbac.RoleOwner, nil)

	// Branch 20 exists, but belongs to another organization.
	err := guard.Authorize(context.Background(), owner, 20)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotErrorIs(t, err, shared.ErrUnauthorized)
}

func TestFilterNarrowsRequestedSet(t *testing.T) {
	guard := newTestGuard()
	mgr := rbac.NewPrincipal(3, 1, rbac.RoleManager, []int64{10, 11})

	out, err := guard.Filter(context.Background(), mgr, []int64{11, 12})
	require.NoError(t, err)
	require.Equal(t, []int64{11}, out)

	out, err = guard.Filter(context.Background(), mgr, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{10, 11}, out)

	_, err = guard.Filter(context.Background(), mgr, []int64{12})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
