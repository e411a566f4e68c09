// Package signals is the signal-lifecycle engine: validated updates over the
// category state machine, per-signal history and category-change
// notifications.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// historyDedupeWindow suppresses duplicate history rows committed by client
// retries.
const historyDedupeWindow = 5 * time.Second

// CategoryChange describes a confirmed signal-category transition for the
// notification dispatcher.
type CategoryChange struct {
	SignalID      int64
	FromCategory  string
	ToCategory    string
	ActorName     string
	ActorEmail    string
	ReviewerEmail string
	Confirmed     bool
	OccurredAt    time.Time
}

// Notifier receives confirmed category changes. Satisfied by the
// notification dispatcher.
type Notifier interface {
	NotifyCategoryChange(ctx context.Context, change CategoryChange) error
}

// Service is the signal engine.
type Service struct {
	store    store.Store
	recorder *audit.Recorder
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the signal engine. notifier may be nil.
func NewService(st store.Store, recorder *audit.Recorder, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		notifier: notifier,
		logger:   logger.With(zap.String("engine", "signals")),
		now:      time.Now,
	}
}

// snapshot is the before/after image stored in history deltas.
type snapshot struct {
	CategoryID int64              `json:"id_categoria_senal"`
	AnalysisID int64              `json:"id_categoria_analisis"`
	RiskScore  float64            `json:"puntaje_riesgo"`
	DetectedAt time.Time          `json:"fecha_deteccion"`
	State      models.SignalState `json:"estado"`
}

func snapshotOf(s *models.Signal) snapshot {
	return snapshot{
		CategoryID: s.CategoryID,
		AnalysisID: s.AnalysisID,
		RiskScore:  s.RiskScore,
		DetectedAt: s.DetectedAt,
		State:      s.State,
	}
}

// Update applies a patch to one signal with referential and state-machine
// validation. Category changes require the actor to confirm the revision.
func (s *Service) Update(ctx context.Context, signalID int64, patch models.SignalUpdate, actor *models.CurrentUser, meta audit.RequestMeta) (*models.SignalView, error) {
	signal, err := s.store.Signals().ByID(ctx, signalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("señal")
		}
		return nil, apperrors.Database(err)
	}
	before := snapshotOf(signal)
	var fromCategory *models.SignalCategory

	if patch.CategoryID != nil && *patch.CategoryID != signal.CategoryID {
		if !patch.RevisionConfirmed {
			s.recorder.Failure(ctx, meta, models.AuditSignalUpdate, "señal", "update",
				&models.SignalDetail{SignalID: signalID, Description: "revision_required"})
			return nil, apperrors.Validation("revision required")
		}
		fromCategory, err = s.category(ctx, signal.CategoryID)
		if err != nil {
			return nil, err
		}
		if _, err := s.category(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
		signal.CategoryID = *patch.CategoryID
	}

	if patch.AnalysisID != nil && *patch.AnalysisID != signal.AnalysisID {
		if _, err := s.analysisCategory(ctx, *patch.AnalysisID); err != nil {
			return nil, err
		}
		signal.AnalysisID = *patch.AnalysisID
	}

	if patch.RiskScore != nil {
		if *patch.RiskScore < 0 || *patch.RiskScore > 100 {
			return nil, apperrors.Validation("el puntaje de riesgo debe estar entre 0 y 100")
		}
		signal.RiskScore = *patch.RiskScore
	}

	if patch.DetectedAt != nil {
		signal.DetectedAt = *patch.DetectedAt
	}

	if patch.State != nil && *patch.State != signal.State {
		if !patch.State.Valid() {
			return nil, apperrors.Validation(fmt.Sprintf("estado desconocido %q", *patch.State))
		}
		if !signal.State.CanTransitionTo(*patch.State) {
			return nil, apperrors.Validation(fmt.Sprintf("transición %s → %s no permitida", signal.State, *patch.State))
		}
		signal.State = *patch.State
		if *patch.State == models.StateResolved && signal.ResolvedAt == nil {
			resolved := s.now()
			signal.ResolvedAt = &resolved
		}
	}

	if patch.AssignedUserID != nil {
		if _, err := s.store.Users().ByID(ctx, *patch.AssignedUserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.Validation("el usuario asignado no existe")
			}
			return nil, apperrors.Database(err)
		}
		signal.AssignedUserID = patch.AssignedUserID
	}

	if patch.ResolutionNotes != nil {
		signal.ResolutionNotes = patch.ResolutionNotes
	}

	after := snapshotOf(signal)
	changed := before != after

	if changed || patch.ChangeDescription != "" {
		signal.UpdatedAt = s.now()
		if err := s.store.Signals().Update(ctx, signal); err != nil {
			return nil, apperrors.Database(err)
		}
		if err := s.appendHistory(ctx, signal.ID, actor, patch.ChangeDescription, before, after, meta); err != nil {
			return nil, err
		}
		s.recorder.Success(ctx, meta, models.AuditSignalUpdate, "señal", "update",
			&models.SignalDetail{
				SignalID:  signal.ID,
				FromState: string(before.State),
				ToState:   string(after.State),
			})
	}

	if fromCategory != nil {
		s.notifyCategoryChange(ctx, signal, fromCategory, actor, patch.RevisionConfirmed)
	}

	return s.view(ctx, signal)
}

// appendHistory writes one trazability row unless an identical row by the
// same actor landed inside the dedupe window.
func (s *Service) appendHistory(ctx context.Context, signalID int64, actor *models.CurrentUser, description string, before, after snapshot, meta audit.RequestMeta) error {
	var actorID *int64
	if actor != nil {
		actorID = &actor.ID
	}

	if actorID != nil {
		last, err := s.store.SignalHistory().LastForActor(ctx, signalID, *actorID)
		if err == nil &&
			last.Description == description &&
			s.now().Sub(last.CreatedAt) < historyDedupeWindow {
			s.logger.Debug("Suppressed duplicate history row",
				zap.Int64("signal_id", signalID), zap.Int64p("actor_id", actorID))
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return apperrors.Database(err)
		}
	}

	delta, err := json.Marshal(map[string]snapshot{"antes": before, "despues": after})
	if err != nil {
		return apperrors.Database(err)
	}
	oldState := string(before.State)
	newState := string(after.State)
	entry := &models.SignalHistoryEntry{
		SignalID:    signalID,
		ActorID:     actorID,
		Action:      models.SignalHistoryAction,
		Description: description,
		OldState:    &oldState,
		NewState:    &newState,
		Delta:       delta,
		IP:          meta.IP,
	}
	if err := s.store.SignalHistory().Append(ctx, entry); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// notifyCategoryChange hands the transition to the dispatcher. Delivery
// failures are logged, never surfaced.
func (s *Service) notifyCategoryChange(ctx context.Context, signal *models.Signal, from *models.SignalCategory, actor *models.CurrentUser, confirmed bool) {
	if s.notifier == nil {
		return
	}
	to, err := s.category(ctx, signal.CategoryID)
	if err != nil {
		s.logger.Error("Category lookup for notification failed",
			zap.Int64("signal_id", signal.ID), zap.Error(err))
		return
	}

	change := CategoryChange{
		SignalID:     signal.ID,
		FromCategory: from.Name,
		ToCategory:   to.Name,
		Confirmed:    confirmed,
		OccurredAt:   s.now(),
	}
	if actor != nil {
		change.ActorName = actor.FullName
		if change.ActorName == "" {
			change.ActorName = actor.Username
		}
		if actor.Email != nil {
			change.ActorEmail = *actor.Email
		}
	}
	if signal.AssignedUserID != nil {
		if reviewer, err := s.store.Users().ByID(ctx, *signal.AssignedUserID); err == nil && reviewer.Email != nil {
			change.ReviewerEmail = *reviewer.Email
		}
	}

	if err := s.notifier.NotifyCategoryChange(ctx, change); err != nil {
		s.logger.Error("Category change notification failed",
			zap.Int64("signal_id", signal.ID), zap.Error(err))
	}
}

// Get returns one signal with resolved names and display color.
func (s *Service) Get(ctx context.Context, signalID int64) (*models.SignalView, error) {
	signal, err := s.store.Signals().ByID(ctx, signalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("señal")
		}
		return nil, apperrors.Database(err)
	}
	return s.view(ctx, signal)
}

// List returns a page of signals with resolved names and colors.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.SignalView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	sigs, err := s.store.Signals().List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	out := make([]*models.SignalView, 0, len(sigs))
	for _, sig := range sigs {
		v, err := s.view(ctx, sig)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// History returns the trazability rows of a signal, newest first.
func (s *Service) History(ctx context.Context, signalID int64, limit int) ([]*models.SignalHistoryEntry, error) {
	if _, err := s.store.Signals().ByID(ctx, signalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("señal")
		}
		return nil, apperrors.Database(err)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.SignalHistory().ListBySignal(ctx, signalID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return rows, nil
}

func (s *Service) category(ctx context.Context, id int64) (*models.SignalCategory, error) {
	c, err := s.store.Categories().SignalCategoryByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Validation("la categoría de señal no existe")
		}
		return nil, apperrors.Database(err)
	}
	return c, nil
}

func (s *Service) analysisCategory(ctx context.Context, id int64) (*models.AnalysisCategory, error) {
	c, err := s.store.Categories().AnalysisCategoryByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Validation("la categoría de análisis no existe")
		}
		return nil, apperrors.Database(err)
	}
	return c, nil
}

func (s *Service) view(ctx context.Context, signal *models.Signal) (*models.SignalView, error) {
	v := &models.SignalView{Signal: *signal}
	if c, err := s.store.Categories().SignalCategoryByID(ctx, signal.CategoryID); err == nil {
		v.CategoryName = c.Name
		v.Color = displayColor(c)
	}
	if a, err := s.store.Categories().AnalysisCategoryByID(ctx, signal.AnalysisID); err == nil {
		v.AnalysisName = a.Name
	}
	return v, nil
}

// fallbackPalette maps category-name fragments to display colors for
// categories without a stored color.
var fallbackPalette = []struct {
	fragment string
	color    string
}{
	{"ruido", "grey"},
	{"verde", "green"},
	{"amarillo", "yellow"},
	{"paracrisis", "orange"},
	{"crisis", "red"},
	{"rojo", "red"},
}

func displayColor(c *models.SignalCategory) string {
	if c.Color != "" {
		return c.Color
	}
	name := strings.ToLower(c.Name)
	for _, p := range fallbackPalette {
		if strings.Contains(name, p.fragment) {
			return p.color
		}
	}
	return "grey"
}
