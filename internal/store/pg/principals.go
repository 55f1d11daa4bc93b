package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worklane.io/internal/auth"
)

type principalStore struct{ db *sql.DB }

const principalColumns = `id, workspace_id, kind, name, email, coalesce(password_hash,''),
	coalesce(role_id,''), coalesce(private_key_pem,''), coalesce(public_key_pem,''),
	coalesce(refresh_token,''), coalesce(refresh_expires_at, to_timestamp(0)), remember_me,
	created_at, updated_at`

func scanPrincipal(row interface{ Scan(...any) error }) (*auth.Principal, error) {
	var p auth.Principal
	var kind string
	err := row.Scan(&p.ID, &p.WorkspaceID, &kind, &p.Name, &p.Email, &p.PasswordHash,
		&p.RoleID, &p.PrivateKeyPEM, &p.PublicKeyPEM,
		&p.RefreshToken, &p.RefreshExpiresAt, &p.RememberMe,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	p.Kind = auth.Kind(kind)
	return &p, nil
}

func (s *principalStore) Create(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into principals(id, workspace_id, kind, name, email, password_hash, role_id,
			private_key_pem, public_key_pem, remember_me)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),$8,$9,false)
	`, p.ID, p.WorkspaceID, string(p.Kind), p.Name, p.Email, p.PasswordHash, p.RoleID,
		p.PrivateKeyPEM, p.PublicKeyPEM)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email already registered", auth.ErrConflict)
	}
	return err
}

func (s *principalStore) Find(ctx context.Context, kind auth.Kind, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1 and kind=$2`, id, string(kind))
	return scanPrincipal(row)
}

// FindAny probes the variants in owner, member, client priority order.
// Compatibility path for tokens without a kind claim.
func (s *principalStore) FindAny(ctx context.Context, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+principalColumns+` from principals where id=$1
		order by case kind when 'owner' then 0 when 'member' then 1 else 2 end
		limit 1
	`, id)
	return scanPrincipal(row)
}

func (s *principalStore) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+principalColumns+` from principals where email=$1
		order by case kind when 'owner' then 0 when 'member' then 1 else 2 end
		limit 1
	`, email)
	return scanPrincipal(row)
}

func (s *principalStore) ListByWorkspace(ctx context.Context, workspaceID string, kind auth.Kind) ([]*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+principalColumns+` from principals
		where workspace_id=$1 and kind=$2 order by created_at
	`, workspaceID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*auth.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *principalStore) SetKeys(ctx context.Context, id, privatePEM, publicPEM string) error {
	return s.exec(ctx, `
		update principals set private_key_pem=$2, public_key_pem=$3, updated_at=now()
		where id=$1
	`, id, privatePEM, publicPEM)
}

// SetRefreshToken overwrites the single stored refresh token, implicitly
// invalidating the previous one.
func (s *principalStore) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time, rememberMe bool) error {
	return s.exec(ctx, `
		update principals set refresh_token=$2, refresh_expires_at=$3, remember_me=$4, updated_at=now()
		where id=$1
	`, id, token, expiresAt, rememberMe)
}

func (s *principalStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update principals set refresh_token=null, refresh_expires_at=null, updated_at=now()
		where id=$1
	`, id)
}

func (s *principalStore) SetRole(ctx context.Context, id, roleID string) error {
	return s.exec(ctx, `
		update principals set role_id=nullif($2,''), updated_at=now()
		where id=$1 and kind='member'
	`, id, roleID)
}

func (s *principalStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, `
		update principals set password_hash=$2, updated_at=now() where id=$1
	`, id, passwordHash)
}

func (s *principalStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
