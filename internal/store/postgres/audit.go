package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sds-platform/sds-core/internal/models"
	"go.uber.org/zap"
)

type auditStore struct {
	s *Store
}

func (st *auditStore) Append(ctx context.Context, e *models.AuditEvent) error {
	query := `
		INSERT INTO eventos_auditoria (
			id_usuario, tipo_evento, recurso, accion, resultado,
			ip_origen, user_agent, detalles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := st.s.pool.QueryRow(ctx, query,
		e.ActorID, e.Kind, e.Resource, e.Action, e.Outcome,
		e.IP, e.UserAgent, e.Details,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		st.s.logger.Error("Failed to append audit event",
			zap.Error(err), zap.String("kind", string(e.Kind)))
		return translateErr(err)
	}
	return nil
}

func (st *auditStore) List(ctx context.Context, kind models.AuditKind, limit, offset int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, id_usuario, tipo_evento, recurso, accion, resultado,
		       ip_origen, user_agent, detalles, created_at
		FROM eventos_auditoria
	`
	args := []any{limit, offset}
	if kind != "" {
		query += ` WHERE tipo_evento = $3`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := st.s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		e := &models.AuditEvent{}
		err := rows.Scan(&e.ID, &e.ActorID, &e.Kind, &e.Resource, &e.Action,
			&e.Outcome, &e.IP, &e.UserAgent, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type systemConfigStore struct {
	s *Store
}

func (st *systemConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := st.s.pool.QueryRow(ctx,
		`SELECT valor FROM configuracion_sistema WHERE clave = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (st *systemConfigStore) Set(ctx context.Context, key, value string, updatedBy *int64) error {
	_, err := st.s.pool.Exec(ctx, `
		INSERT INTO configuracion_sistema (clave, valor, actualizado_por)
		VALUES ($1, $2, $3)
		ON CONFLICT (clave) DO UPDATE
		SET valor = EXCLUDED.valor, actualizado_por = EXCLUDED.actualizado_por,
		    updated_at = now()`, key, value, updatedBy)
	return translateErr(err)
}

func (st *systemConfigStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := st.s.pool.Query(ctx, `SELECT clave, valor FROM configuracion_sistema`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
