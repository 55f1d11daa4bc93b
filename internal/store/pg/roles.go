package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worklane.io/internal/auth"
)

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into roles(id, workspace_id, name, is_system) values ($1,$2,$3,$4)
	`, role.ID, role.WorkspaceID, role.Name, role.IsSystem)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: role %q already exists in workspace", auth.ErrConflict, role.Name)
	}
	if err != nil {
		return err
	}
	for _, key := range role.Permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_key) values ($1,$2)
			on conflict do nothing
		`, role.ID, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, workspace_id, name, is_system, created_at, updated_at from roles where id=$1
	`, id)
	return s.scanRole(ctx, row)
}

func (s *roleStore) FindByName(ctx context.Context, workspaceID, name string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, workspace_id, name, is_system, created_at, updated_at
		from roles where workspace_id=$1 and name=$2
	`, workspaceID, name)
	return s.scanRole(ctx, row)
}

func (s *roleStore) scanRole(ctx context.Context, row *sql.Row) (*auth.Role, error) {
	var role auth.Role
	if err := row.Scan(&role.ID, &role.WorkspaceID, &role.Name, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	perms, err := s.permissionKeys(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *roleStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, workspace_id, name, is_system, created_at, updated_at
		from roles where workspace_id=$1 order by created_at
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.WorkspaceID, &role.Name, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range res {
		perms, err := s.permissionKeys(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return res, nil
}

func (s *roleStore) SetPermissions(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_key) values ($1,$2)
		`, roleID, key); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `update roles set updated_at=now() where id=$1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *roleStore) Delete(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, roleID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *roleStore) MembersWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id from principals where kind='member' and role_id=$1
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *roleStore) permissionKeys(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select permission_key from role_permissions where role_id=$1 order by permission_key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions(key, description) values ($1,$2)
			on conflict (key) do update set description = excluded.description
		`, p.Key, p.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select key, coalesce(description,''), created_at from permissions order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
