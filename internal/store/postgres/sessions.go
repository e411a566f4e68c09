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

type sessionStore struct {
	s *Store
}

const sessionColumns = `
	id, id_usuario, token_acceso, token_refresco, expira_acceso,
	expira_refresco, valida, ip_origen, user_agent, created_at,
	ultimo_acceso, invalidada_en, motivo_invalidacion`

func scanSession(row pgx.Row) (*models.Session, error) {
	sess := &models.Session{}
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.AccessToken, &sess.RefreshToken,
		&sess.AccessExpiresAt, &sess.RefreshExpiresAt, &sess.Valid,
		&sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.LastAccessAt,
		&sess.InvalidatedAt, &sess.InvalidationReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Create enforces the active-session cap under a row lock on the owner so
// concurrent logins cannot overshoot it.
func (st *sessionStore) Create(ctx context.Context, sess *models.Session, maxSessions int) error {
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT id FROM usuarios WHERE id = $1 FOR UPDATE`, sess.UserID); err != nil {
		return translateErr(err)
	}

	if maxSessions > 0 {
		var active int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM sesiones
			WHERE id_usuario = $1 AND valida AND expira_refresco > now()`,
			sess.UserID).Scan(&active)
		if err != nil {
			return err
		}
		if active >= maxSessions {
			_, err := tx.Exec(ctx, `
				UPDATE sesiones
				SET valida = false, invalidada_en = now(), motivo_invalidacion = $2
				WHERE id = (
					SELECT id FROM sesiones
					WHERE id_usuario = $1 AND valida AND expira_refresco > now()
					ORDER BY created_at ASC
					LIMIT 1
				)`, sess.UserID, models.InvalidationSessionCap)
			if err != nil {
				return err
			}
			st.s.logger.Info("Invalidated oldest session over cap",
				zap.Int64("user_id", sess.UserID), zap.Int("cap", maxSessions))
		}
	}

	query := `
		INSERT INTO sesiones (
			id, id_usuario, token_acceso, token_refresco, expira_acceso,
			expira_refresco, valida, ip_origen, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, ultimo_acceso
	`
	err = tx.QueryRow(ctx, query,
		sess.ID, sess.UserID, sess.AccessToken, sess.RefreshToken,
		sess.AccessExpiresAt, sess.RefreshExpiresAt, sess.Valid,
		sess.IP, sess.UserAgent,
	).Scan(&sess.CreatedAt, &sess.LastAccessAt)
	if err != nil {
		return translateErr(err)
	}
	return tx.Commit(ctx)
}

func (st *sessionStore) ByAccessToken(ctx context.Context, token string) (*models.Session, error) {
	return scanSession(st.s.pool.QueryRow(ctx,
		`SELECT`+sessionColumns+` FROM sesiones WHERE token_acceso = $1`, token))
}

func (st *sessionStore) ByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	return scanSession(st.s.pool.QueryRow(ctx,
		`SELECT`+sessionColumns+` FROM sesiones WHERE token_refresco = $1`, token))
}

func (st *sessionStore) ListActive(ctx context.Context, userID int64) ([]*models.Session, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT`+sessionColumns+`
		FROM sesiones
		WHERE id_usuario = $1 AND valida AND expira_refresco > now()
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (st *sessionStore) CountActive(ctx context.Context, userID int64) (int, error) {
	var n int
	err := st.s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sesiones
		WHERE id_usuario = $1 AND valida AND expira_refresco > now()`, userID).Scan(&n)
	return n, err
}

func (st *sessionStore) Invalidate(ctx context.Context, id, reason string) error {
	tag, err := st.s.pool.Exec(ctx, `
		UPDATE sesiones
		SET valida = false, invalidada_en = now(), motivo_invalidacion = $2
		WHERE id = $1 AND valida`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Idempotent when the session exists but is already invalid.
		var exists bool
		if err := st.s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM sesiones WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

func (st *sessionStore) InvalidateUser(ctx context.Context, userID int64, exceptID, reason string) (int64, error) {
	tag, err := st.s.pool.Exec(ctx, `
		UPDATE sesiones
		SET valida = false, invalidada_en = now(), motivo_invalidacion = $3
		WHERE id_usuario = $1 AND valida AND id <> $2`, userID, exceptID, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Rotate replaces both tokens atomically. A concurrent refresh on the same
// session loses the race harmlessly: the guard on valida plus the matched row
// count surface ErrConflict.
func (st *sessionStore) Rotate(ctx context.Context, id, access, refresh string, accessExp, refreshExp time.Time) error {
	tag, err := st.s.pool.Exec(ctx, `
		UPDATE sesiones
		SET token_acceso = $2, token_refresco = $3, expira_acceso = $4,
		    expira_refresco = $5, ultimo_acceso = now()
		WHERE id = $1 AND valida`, id, access, refresh, accessExp, refreshExp)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (st *sessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := st.s.pool.Exec(ctx,
		`UPDATE sesiones SET ultimo_acceso = $2 WHERE id = $1`, id, at)
	return err
}

func (st *sessionStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := st.s.pool.Exec(ctx, `
		UPDATE sesiones
		SET valida = false, invalidada_en = $1, motivo_invalidacion = $2
		WHERE valida AND expira_acceso < $1`, now, models.InvalidationAutoExpired)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (st *sessionStore) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := st.s.pool.Exec(ctx, `
		DELETE FROM sesiones
		WHERE NOT valida AND expira_refresco < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type passwordHistoryStore struct {
	s *Store
}

func (st *passwordHistoryStore) Append(ctx context.Context, userID int64, hash string) error {
	_, err := st.s.pool.Exec(ctx, `
		INSERT INTO password_history (id_usuario, password_hash)
		VALUES ($1, $2)`, userID, hash)
	return translateErr(err)
}

func (st *passwordHistoryStore) Recent(ctx context.Context, userID int64, k int) ([]*models.PasswordHistoryEntry, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, id_usuario, password_hash, created_at
		FROM password_history
		WHERE id_usuario = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.PasswordHistoryEntry, 0, k)
	for rows.Next() {
		e := &models.PasswordHistoryEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (st *passwordHistoryStore) Prune(ctx context.Context, userID int64, keep int) error {
	_, err := st.s.pool.Exec(ctx, `
		DELETE FROM password_history
		WHERE id_usuario = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE id_usuario = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`, userID, keep)
	return err
}
