package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/shared"
)

// RepositoryPort abstracts persistence for the recorder. The repository
// exposes no update or delete; the log is append-only by construction.
type RepositoryPort interface {
	Insert(ctx context.Context, entry Entry) error
	InsertPasswordAccess(ctx context.Context, access PasswordAccess) error
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
}

// Service is the append-only audit recorder.
type Service struct {
	repo  RepositoryPort
	guard *scope.Guard
}

// NewService builds the recorder.
func NewService(repo RepositoryPort, guard *scope.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

// Record appends one entry. Engine callers invoke it best-effort after
// their transaction commits; a committed mutation is never rolled back
// over a missed audit write.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: recorder not initialised")
	}
	if strings.TrimSpace(entry.Action) == "" ||
		strings.TrimSpace(entry.Entity) == "" ||
		strings.TrimSpace(entry.EntityID) == "" {
		return ErrIncompleteEntry
	}
	if entry.Ref == "" {
		entry.Ref = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	return s.repo.Insert(ctx, entry)
}

// RecordPasswordAccess appends a device-password access record. Written
// before the decrypted value is returned to the caller.
func (s *Service) RecordPasswordAccess(ctx context.Context, access PasswordAccess) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: recorder not initialised")
	}
	if strings.TrimSpace(access.Reason) == "" {
		return ErrReasonRequired
	}
	if access.JobID <= 0 || access.ActorID <= 0 {
		return errors.New("audit: password access requires job and actor")
	}
	if access.At.IsZero() {
		access.At = time.Now().UTC()
	}
	return s.repo.InsertPasswordAccess(ctx, access)
}

// Query lists entries visible to the principal. The requested branch set
// is narrowed through the scope guard before the repository sees it.
func (s *Service) Query(ctx context.Context, p rbac.Principal, filters Filters) ([]Entry, shared.Pagination, error) {
	if !p.Can(rbac.CapAuditView) {
		return nil, shared.Pagination{}, shared.ErrUnauthorized
	}
	branchIDs, err := s.guard.Filter(ctx, p, filters.BranchIDs)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filters.BranchIDs = branchIDs
	if filters.PerPage <= 0 || filters.PerPage > 100 {
		filters.PerPage = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	entries, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}
