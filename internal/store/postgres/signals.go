package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

type signalStore struct {
	s *Store
}

const signalColumns = `
	id, fecha_deteccion, puntaje_riesgo, id_categoria_senal,
	id_categoria_analisis, estado, id_usuario_asignado, fecha_resolucion,
	notas_resolucion, contenido, plataformas, metadatos, created_at,
	fecha_actualizacion`

func scanSignal(row pgx.Row) (*models.Signal, error) {
	sig := &models.Signal{}
	err := row.Scan(
		&sig.ID, &sig.DetectedAt, &sig.RiskScore, &sig.CategoryID,
		&sig.AnalysisID, &sig.State, &sig.AssignedUserID, &sig.ResolvedAt,
		&sig.ResolutionNotes, &sig.Content, &sig.Platforms, &sig.Metadata,
		&sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sig, nil
}

func (st *signalStore) ByID(ctx context.Context, id int64) (*models.Signal, error) {
	return scanSignal(st.s.pool.QueryRow(ctx,
		`SELECT`+signalColumns+` FROM sds.senal_detectada WHERE id = $1`, id))
}

func (st *signalStore) Update(ctx context.Context, sig *models.Signal) error {
	query := `
		UPDATE sds.senal_detectada SET
			fecha_deteccion = $1, puntaje_riesgo = $2, id_categoria_senal = $3,
			id_categoria_analisis = $4, estado = $5, id_usuario_asignado = $6,
			fecha_resolucion = $7, notas_resolucion = $8,
			fecha_actualizacion = now()
		WHERE id = $9
	`
	tag, err := st.s.pool.Exec(ctx, query,
		sig.DetectedAt, sig.RiskScore, sig.CategoryID, sig.AnalysisID,
		sig.State, sig.AssignedUserID, sig.ResolvedAt, sig.ResolutionNotes,
		sig.ID)
	if err != nil {
		st.s.logger.Error("Failed to update signal", zap.Error(err), zap.Int64("signal_id", sig.ID))
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *signalStore) List(ctx context.Context, limit, offset int) ([]*models.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := st.s.pool.Query(ctx,
		`SELECT`+signalColumns+` FROM sds.senal_detectada ORDER BY fecha_deteccion DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]*models.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

type signalHistoryStore struct {
	s *Store
}

func (st *signalHistoryStore) Append(ctx context.Context, e *models.SignalHistoryEntry) error {
	query := `
		INSERT INTO sds.historial_senal (
			id_senal, id_usuario, accion, descripcion, estado_anterior,
			estado_nuevo, delta, ip_origen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := st.s.pool.QueryRow(ctx, query,
		e.SignalID, e.ActorID, e.Action, e.Description, e.OldState,
		e.NewState, e.Delta, e.IP,
	).Scan(&e.ID, &e.CreatedAt)
	return translateErr(err)
}

func (st *signalHistoryStore) ListBySignal(ctx context.Context, signalID int64, limit int) ([]*models.SignalHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, id_senal, id_usuario, accion, descripcion, estado_anterior,
		       estado_nuevo, delta, ip_origen, created_at
		FROM sds.historial_senal
		WHERE id_senal = $1
		ORDER BY id DESC
		LIMIT $2`, signalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.SignalHistoryEntry, 0)
	for rows.Next() {
		e := &models.SignalHistoryEntry{}
		err := rows.Scan(&e.ID, &e.SignalID, &e.ActorID, &e.Action,
			&e.Description, &e.OldState, &e.NewState, &e.Delta, &e.IP,
			&e.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (st *signalHistoryStore) LastForActor(ctx context.Context, signalID, actorID int64) (*models.SignalHistoryEntry, error) {
	e := &models.SignalHistoryEntry{}
	err := st.s.pool.QueryRow(ctx, `
		SELECT id, id_senal, id_usuario, accion, descripcion, estado_anterior,
		       estado_nuevo, delta, ip_origen, created_at
		FROM sds.historial_senal
		WHERE id_senal = $1 AND id_usuario = $2
		ORDER BY id DESC
		LIMIT 1`, signalID, actorID).Scan(
		&e.ID, &e.SignalID, &e.ActorID, &e.Action, &e.Description,
		&e.OldState, &e.NewState, &e.Delta, &e.IP, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

type categoryStore struct {
	s *Store
}

func (st *categoryStore) SignalCategoryByID(ctx context.Context, id int64) (*models.SignalCategory, error) {
	c := &models.SignalCategory{}
	err := st.s.pool.QueryRow(ctx, `
		SELECT id, nombre, id_padre, nivel, color, umbral_inferior,
		       umbral_superior, activo
		FROM sds.categoria_senal WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.ParentID, &c.Level, &c.Color, &c.ScoreLow,
		&c.ScoreHigh, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (st *categoryStore) AnalysisCategoryByID(ctx context.Context, id int64) (*models.AnalysisCategory, error) {
	c := &models.AnalysisCategory{}
	err := st.s.pool.QueryRow(ctx, `
		SELECT id, nombre, descripcion, activo
		FROM sds.categoria_analisis_senal WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (st *categoryStore) ListSignalCategories(ctx context.Context) ([]*models.SignalCategory, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, nombre, id_padre, nivel, color, umbral_inferior,
		       umbral_superior, activo
		FROM sds.categoria_senal ORDER BY nivel, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats := make([]*models.SignalCategory, 0)
	for rows.Next() {
		c := &models.SignalCategory{}
		err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Level, &c.Color,
			&c.ScoreLow, &c.ScoreHigh, &c.Active)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (st *categoryStore) ListAnalysisCategories(ctx context.Context) ([]*models.AnalysisCategory, error) {
	rows, err := st.s.pool.Query(ctx, `
		SELECT id, nombre, descripcion, activo
		FROM sds.categoria_analisis_senal ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats := make([]*models.AnalysisCategory, 0)
	for rows.Next() {
		c := &models.AnalysisCategory{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Active); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
