package audit

import (
	"errors"
	"time"
)

// Entry is an immutable audit record. Every state-changing operation in
// the job, inventory and billing engines writes exactly one.
type Entry struct {
	ID int64
	// Ref is the externally quotable token for this record, filled at
	// record time when the caller leaves it empty.
	Ref      string
	BranchID int64
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// PasswordAccess records a read of an encrypted device-password field.
// Kept separate from the generic log so password reads are individually
// reportable.
type PasswordAccess struct {
	ID       int64
	JobID    int64
	BranchID int64
	ActorID  int64
	Reason   string
	At       time.Time
}

// Filters narrows audit queries.
type Filters struct {
	BranchIDs []int64
	Entity    string
	Action    string
	ActorID   int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrIncompleteEntry indicates a record missing required fields.
	ErrIncompleteEntry = errors.New("audit: entry requires action, entity and entity id")
	// ErrReasonRequired indicates a password access without a reason.
	ErrReasonRequired = errors.New("audit: password access requires a reason")
)
