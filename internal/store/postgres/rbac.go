package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

type roleStore struct {
	s *Store
}

func scanRole(row pgx.Row) (*models.Role, error) {
	r := &models.Role{}
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Active, &r.System,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

const roleColumns = `id, nombre, descripcion, activo, es_sistema, created_at, updated_at`

func (st *roleStore) Create(ctx context.Context, r *models.Role) error {
	query := `
		INSERT INTO roles (nombre, descripcion, activo, es_sistema)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := st.s.pool.QueryRow(ctx, query, r.Name, r.Description, r.Active, r.System).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		st.s.logger.Error("Failed to create role", zap.Error(err), zap.String("role", r.Name))
		return translateErr(err)
	}
	return nil
}

func (st *roleStore) ByID(ctx context.Context, id int64) (*models.Role, error) {
	return scanRole(st.s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (st *roleStore) ByName(ctx context.Context, name string) (*models.Role, error) {
	return scanRole(st.s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE lower(nombre) = lower($1)`, name))
}

func (st *roleStore) Update(ctx context.Context, r *models.Role) error {
	query := `
		UPDATE roles
		SET nombre = $1, descripcion = $2, activo = $3, updated_at = now()
		WHERE id = $4
	`
	tag, err := st.s.pool.Exec(ctx, query, r.Name, r.Description, r.Active, r.ID)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *roleStore) SoftDelete(ctx context.Context, id int64) error {
	tag, err := st.s.pool.Exec(ctx,
		`UPDATE roles SET activo = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *roleStore) List(ctx context.Context, activeOnly bool) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if activeOnly {
		query += ` WHERE activo`
	}
	query += ` ORDER BY id`

	rows, err := st.s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// SetPermissions replaces the role's permission set in one transaction.
func (st *roleStore) SetPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM roles_permisos WHERE id_rol = $1`, roleID); err != nil {
		return translateErr(err)
	}
	for _, pid := range permissionIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles_permisos (id_rol, id_permiso) VALUES ($1, $2)
			ON CONFLICT (id_rol, id_permiso) DO NOTHING`, roleID, pid)
		if err != nil {
			return translateErr(err)
		}
	}
	return tx.Commit(ctx)
}

func (st *roleStore) PermissionCodesForRole(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT p.codigo
		FROM permisos p
		JOIN roles_permisos rp ON rp.id_permiso = p.id
		WHERE rp.id_rol = $1
		ORDER BY p.codigo`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ReplaceUserRoles atomically replaces the user's role assignments.
func (st *roleStore) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM usuarios_roles WHERE id_usuario = $1`, userID); err != nil {
		return translateErr(err)
	}
	for _, rid := range roleIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO usuarios_roles (id_usuario, id_rol) VALUES ($1, $2)
			ON CONFLICT (id_usuario, id_rol) DO NOTHING`, userID, rid)
		if err != nil {
			return translateErr(err)
		}
	}
	return tx.Commit(ctx)
}

func (st *roleStore) RolesForUser(ctx context.Context, userID int64) ([]*models.Role, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT r.id, r.nombre, r.descripcion, r.activo, r.es_sistema, r.created_at, r.updated_at
		FROM roles r
		JOIN usuarios_roles ur ON ur.id_rol = r.id
		WHERE ur.id_usuario = $1 AND r.activo
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (st *roleStore) PermissionCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT DISTINCT p.codigo
		FROM permisos p
		JOIN roles_permisos rp ON rp.id_permiso = p.id
		JOIN roles r ON r.id = rp.id_rol
		JOIN usuarios_roles ur ON ur.id_rol = r.id
		WHERE ur.id_usuario = $1 AND r.activo
		ORDER BY p.codigo`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type permissionStore struct {
	s *Store
}

// Ensure inserts any missing catalog entries. Re-running is idempotent.
func (st *permissionStore) Ensure(ctx context.Context, perms []models.Permission) error {
	for _, p := range perms {
		_, err := st.s.pool.Exec(ctx, `
			INSERT INTO permisos (codigo, recurso, accion, descripcion)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (codigo) DO NOTHING`,
			p.Code, p.Resource, p.Action, p.Description)
		if err != nil {
			return translateErr(err)
		}
	}
	return nil
}

func (st *permissionStore) List(ctx context.Context) ([]*models.Permission, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, codigo, recurso, accion, descripcion, created_at
		FROM permisos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (st *permissionStore) ByCodes(ctx context.Context, codes []string) ([]*models.Permission, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, codigo, recurso, accion, descripcion, created_at
		FROM permisos WHERE codigo = ANY($1) ORDER BY id`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms, err := scanPermissions(rows)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(codes) {
		return nil, store.ErrNotFound
	}
	return perms, nil
}

func scanPermissions(rows pgx.Rows) ([]*models.Permission, error) {
	perms := make([]*models.Permission, 0)
	for rows.Next() {
		p := &models.Permission{}
		if err := rows.Scan(&p.ID, &p.Code, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
