package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

type userStore struct {
	s *Store
}

const userColumns = `
	id, username, email, nombre_completo, tipo_autenticacion, id_externo,
	password_hash, activo, es_superusuario, requiere_cambio_password,
	intentos_fallidos, bloqueado_en, ultimo_acceso, ultimo_cambio_password,
	token_reset, token_reset_expira, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.AuthKind, &u.ExternalID,
		&u.PasswordHash, &u.Active, &u.Superuser, &u.RequiresPwdChange,
		&u.FailedAttempts, &u.LockedAt, &u.LastLoginAt, &u.LastPasswordChange,
		&u.ResetToken, &u.ResetTokenExpires, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (st *userStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO usuarios (
			username, email, nombre_completo, tipo_autenticacion, id_externo,
			password_hash, activo, es_superusuario, requiere_cambio_password)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := st.s.pool.QueryRow(ctx, query,
		u.Username, u.Email, u.FullName, u.AuthKind, u.ExternalID,
		u.PasswordHash, u.Active, u.Superuser, u.RequiresPwdChange,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		st.s.logger.Error("Failed to create user", zap.Error(err), zap.String("username", u.Username))
		return translateErr(err)
	}
	return nil
}

func (st *userStore) ByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM usuarios WHERE id = $1`
	return scanUser(st.s.pool.QueryRow(ctx, query, id))
}

func (st *userStore) ByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM usuarios WHERE lower(username) = lower($1)`
	return scanUser(st.s.pool.QueryRow(ctx, query, username))
}

func (st *userStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM usuarios WHERE lower(email) = lower($1)`
	return scanUser(st.s.pool.QueryRow(ctx, query, email))
}

func (st *userStore) ByResetToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM usuarios WHERE token_reset = $1`
	return scanUser(st.s.pool.QueryRow(ctx, query, token))
}

func (st *userStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE usuarios SET
			username = $1, email = $2, nombre_completo = $3,
			tipo_autenticacion = $4, id_externo = $5, password_hash = $6,
			activo = $7, es_superusuario = $8, requiere_cambio_password = $9,
			intentos_fallidos = $10, bloqueado_en = $11, ultimo_acceso = $12,
			ultimo_cambio_password = $13, token_reset = $14,
			token_reset_expira = $15, updated_at = now()
		WHERE id = $16
	`
	tag, err := st.s.pool.Exec(ctx, query,
		u.Username, u.Email, u.FullName, u.AuthKind, u.ExternalID,
		u.PasswordHash, u.Active, u.Superuser, u.RequiresPwdChange,
		u.FailedAttempts, u.LockedAt, u.LastLoginAt, u.LastPasswordChange,
		u.ResetToken, u.ResetTokenExpires, u.ID)
	if err != nil {
		st.s.logger.Error("Failed to update user", zap.Error(err), zap.Int64("user_id", u.ID))
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *userStore) Delete(ctx context.Context, id int64) error {
	// Audit rows reference usuarios with ON DELETE SET NULL, so events
	// survive the actor.
	tag, err := st.s.pool.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *userStore) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT` + userColumns + ` FROM usuarios ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := st.s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (st *userStore) Count(ctx context.Context) (int, error) {
	var n int
	err := st.s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usuarios`).Scan(&n)
	return n, err
}

func (st *userStore) CountActiveSuperusers(ctx context.Context) (int, error) {
	var n int
	err := st.s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usuarios WHERE activo AND es_superusuario`).Scan(&n)
	return n, err
}

func (st *userStore) ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := st.s.pool.Exec(ctx, `
		UPDATE usuarios
		SET token_reset = NULL, token_reset_expira = NULL, updated_at = now()
		WHERE token_reset IS NOT NULL AND token_reset_expira < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
