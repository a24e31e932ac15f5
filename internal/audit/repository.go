package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit records in PostgreSQL. Only INSERT and SELECT
// are implemented; the tables carry no code path for UPDATE or DELETE.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (ref, branch_id, actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Ref, entry.BranchID, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, metaJSON, entry.At)
	return err
}

func (r *Repository) InsertPasswordAccess(ctx context.Context, access PasswordAccess) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO device_password_access_logs (job_id, branch_id, actor_id, reason, accessed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		access.JobID, access.BranchID, access.ActorID, access.Reason, access.At)
	return err
}

func (r *Repository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	where := []string{"branch_id = ANY($1)"}
	args := []any{filters.BranchIDs}

	if filters.Entity != "" {
		args = append(args, filters.Entity)
		where = append(where, "entity = $"+strconv.Itoa(len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		where = append(where, "action = $"+strconv.Itoa(len(args)))
	}
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		where = append(where, "actor_id = $"+strconv.Itoa(len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		where = append(where, "occurred_at >= $"+strconv.Itoa(len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		where = append(where, "occurred_at <= $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filters.Page - 1) * filters.PerPage
	args = append(args, filters.PerPage, offset)
	query := fmt.Sprintf(
		`SELECT id, ref, branch_id, actor_id, action, entity, entity_id, meta, occurred_at
		 FROM audit_logs WHERE %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		cond, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Ref, &e.BranchID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &metaJSON, &e.At); err != nil {
			return nil, 0, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return nil, 0, fmt.Errorf("audit: unmarshal meta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
