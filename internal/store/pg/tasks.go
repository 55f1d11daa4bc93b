package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"worklane.io/internal/task"
)

// TaskStore implements task.Store on PostgreSQL. Assignees live in a
// jsonb column; history and attachments are separate append-only tables.
type TaskStore struct{ db *sql.DB }

var _ task.Store = (*TaskStore)(nil)

const taskColumns = `id, workspace_id, client_id, title, coalesce(description,''),
	assignees, status, creator_id, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*task.Task, error) {
	var t task.Task
	var status string
	var assignees []byte
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.ClientID, &t.Title, &t.Description,
		&assignees, &status, &t.CreatorID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, err
	}
	t.Status = task.Status(status)
	if len(assignees) > 0 {
		_ = json.Unmarshal(assignees, &t.Assignees)
	}
	return &t, nil
}

func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	assignees, err := json.Marshal(t.Assignees)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into tasks(id, workspace_id, client_id, title, description, assignees, status, creator_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.WorkspaceID, t.ClientID, t.Title, t.Description, assignees, string(t.Status), t.CreatorID)
	return err
}

func (s *TaskStore) Find(ctx context.Context, workspaceID, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+taskColumns+` from tasks where id=$1 and workspace_id=$2`, id, workspaceID)
	return scanTask(row)
}

func (s *TaskStore) List(ctx context.Context, workspaceID string) ([]*task.Task, error) {
	return s.list(ctx, `select `+taskColumns+` from tasks where workspace_id=$1 order by created_at desc`, workspaceID)
}

func (s *TaskStore) ListAccessible(ctx context.Context, workspaceID, principalID string) ([]*task.Task, error) {
	return s.list(ctx, `
		select `+taskColumns+` from tasks
		where workspace_id=$1 and (creator_id=$2 or assignees @> to_jsonb(array[$2::text]))
		order by created_at desc
	`, workspaceID, principalID)
}

func (s *TaskStore) ListByClient(ctx context.Context, workspaceID, clientID string) ([]*task.Task, error) {
	return s.list(ctx, `
		select `+taskColumns+` from tasks where workspace_id=$1 and client_id=$2
		order by created_at desc
	`, workspaceID, clientID)
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *TaskStore) UpdateDetails(ctx context.Context, id string, upd task.Update) error {
	var assignees any
	if upd.Assignees != nil {
		data, err := json.Marshal(upd.Assignees)
		if err != nil {
			return err
		}
		assignees = data
	}
	res, err := s.db.ExecContext(ctx, `
		update tasks set
			title       = coalesce($2, title),
			description = coalesce($3, description),
			assignees   = coalesce($4, assignees),
			updated_at  = now()
		where id=$1
	`, id, upd.Title, upd.Description, assignees)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.ErrNotFound
	}
	return nil
}

// ApplyTransition moves the status and inserts the ledger row in one
// transaction, so a status change can never land without its history
// entry. The update is the conditional write at the heart of transition
// safety: zero affected rows means another writer moved the item first,
// and the whole transaction rolls back with ErrStale.
func (s *TaskStore) ApplyTransition(ctx context.Context, id string, from, to task.Status, entry *task.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update tasks set status=$3, updated_at=now() where id=$1 and status=$2
	`, id, string(from), string(to))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return task.ErrStale
	}

	if _, err := tx.ExecContext(ctx, `
		insert into task_history(id, task_id, from_status, to_status, actor_id, actor_name, note, at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.TaskID, string(entry.From), string(entry.To),
		entry.ActorID, entry.ActorName, entry.Note, entry.At); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *TaskStore) History(ctx context.Context, taskID string) ([]task.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, task_id, from_status, to_status, actor_id, actor_name, coalesce(note,''), at
		from task_history where task_id=$1 order by at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []task.HistoryEntry
	for rows.Next() {
		var e task.HistoryEntry
		var from, to string
		if err := rows.Scan(&e.ID, &e.TaskID, &from, &to, &e.ActorID, &e.ActorName, &e.Note, &e.At); err != nil {
			return nil, err
		}
		e.From, e.To = task.Status(from), task.Status(to)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *TaskStore) AddAttachment(ctx context.Context, att *task.Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into task_attachments(id, task_id, key, filename, mime_type, tag, uploaded_by, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, att.ID, att.TaskID, att.Key, att.Filename, att.MimeType, string(att.Tag), att.UploadedBy, att.CreatedAt)
	return err
}

func (s *TaskStore) Attachment(ctx context.Context, taskID, attachmentID string) (*task.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, task_id, key, filename, mime_type, tag, uploaded_by, created_at
		from task_attachments where task_id=$1 and id=$2
	`, taskID, attachmentID)
	var att task.Attachment
	var tag string
	if err := row.Scan(&att.ID, &att.TaskID, &att.Key, &att.Filename, &att.MimeType, &tag, &att.UploadedBy, &att.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, err
	}
	att.Tag = task.AttachmentTag(tag)
	return &att, nil
}

func (s *TaskStore) Attachments(ctx context.Context, taskID string) ([]task.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, task_id, key, filename, mime_type, tag, uploaded_by, created_at
		from task_attachments where task_id=$1 order by created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []task.Attachment
	for rows.Next() {
		var att task.Attachment
		var tag string
		if err := rows.Scan(&att.ID, &att.TaskID, &att.Key, &att.Filename, &att.MimeType, &tag, &att.UploadedBy, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.Tag = task.AttachmentTag(tag)
		res = append(res, att)
	}
	return res, rows.Err()
}

func (s *TaskStore) RemoveAttachment(ctx context.Context, taskID, attachmentID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from task_attachments where task_id=$1 and id=$2
	`, taskID, attachmentID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.ErrNotFound
	}
	return nil
}
