package pg

import (
	"context"
	"database/sql"
	"errors"

	"worklane.io/internal/requirement"
	"worklane.io/internal/task"
)

// RequirementStore implements requirement.Store on PostgreSQL. Links to
// work items live in the requirement_tasks join table.
type RequirementStore struct{ db *sql.DB }

var _ requirement.Store = (*RequirementStore)(nil)

const requirementColumns = `id, workspace_id, client_id, title, coalesce(description,''),
	status, created_at, updated_at`

func scanRequirement(row interface{ Scan(...any) error }) (*requirement.Requirement, error) {
	var r requirement.Requirement
	var status string
	err := row.Scan(&r.ID, &r.WorkspaceID, &r.ClientID, &r.Title, &r.Description,
		&status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, requirement.ErrNotFound
		}
		return nil, err
	}
	r.Status = requirement.Status(status)
	return &r, nil
}

func (s *RequirementStore) Create(ctx context.Context, r *requirement.Requirement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into requirements(id, workspace_id, client_id, title, description, status)
		values ($1,$2,$3,$4,$5,$6)
	`, r.ID, r.WorkspaceID, r.ClientID, r.Title, r.Description, string(r.Status))
	if err != nil {
		return err
	}
	for _, taskID := range r.TaskIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into requirement_tasks(requirement_id, task_id) values ($1,$2)
			on conflict do nothing
		`, r.ID, taskID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RequirementStore) Find(ctx context.Context, workspaceID, id string) (*requirement.Requirement, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+requirementColumns+` from requirements where id=$1 and workspace_id=$2`, id, workspaceID)
	r, err := scanRequirement(row)
	if err != nil {
		return nil, err
	}
	r.TaskIDs, err = s.linkedTaskIDs(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RequirementStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*requirement.Requirement, error) {
	return s.list(ctx, `
		select `+requirementColumns+` from requirements where workspace_id=$1 order by created_at desc
	`, workspaceID)
}

func (s *RequirementStore) ListByClient(ctx context.Context, workspaceID, clientID string) ([]*requirement.Requirement, error) {
	return s.list(ctx, `
		select `+requirementColumns+` from requirements
		where workspace_id=$1 and client_id=$2 order by created_at desc
	`, workspaceID, clientID)
}

// ListLinkedTo returns every requirement referencing the work item.
func (s *RequirementStore) ListLinkedTo(ctx context.Context, taskID string) ([]*requirement.Requirement, error) {
	return s.list(ctx, `
		select r.id, r.workspace_id, r.client_id, r.title, coalesce(r.description,''),
			r.status, r.created_at, r.updated_at
		from requirements r
		join requirement_tasks rt on rt.requirement_id = r.id
		where rt.task_id=$1
		order by r.created_at
	`, taskID)
}

func (s *RequirementStore) list(ctx context.Context, query string, args ...any) ([]*requirement.Requirement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*requirement.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range res {
		r.TaskIDs, err = s.linkedTaskIDs(ctx, r.ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// LinkedStatuses loads the live status of every linked work item.
func (s *RequirementStore) LinkedStatuses(ctx context.Context, requirementID string) ([]task.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		select t.status
		from requirement_tasks rt
		join tasks t on t.id = rt.task_id
		where rt.requirement_id=$1
	`, requirementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []task.Status
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		res = append(res, task.Status(st))
	}
	return res, rows.Err()
}

func (s *RequirementStore) LinkTask(ctx context.Context, requirementID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into requirement_tasks(requirement_id, task_id) values ($1,$2)
		on conflict do nothing
	`, requirementID, taskID)
	return err
}

// SetStatus is conditional on the current status so concurrent
// derivations cannot overwrite each other blindly.
func (s *RequirementStore) SetStatus(ctx context.Context, id string, from, to requirement.Status) error {
	res, err := s.db.ExecContext(ctx, `
		update requirements set status=$3, updated_at=now() where id=$1 and status=$2
	`, id, string(from), string(to))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return requirement.ErrStale
	}
	return nil
}

func (s *RequirementStore) linkedTaskIDs(ctx context.Context, requirementID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select task_id from requirement_tasks where requirement_id=$1 order by task_id
	`, requirementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
