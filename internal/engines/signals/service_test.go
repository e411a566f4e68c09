package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureNotifier struct {
	changes []CategoryChange
	err     error
}

func (n *captureNotifier) NotifyCategoryChange(_ context.Context, change CategoryChange) error {
	n.changes = append(n.changes, change)
	return n.err
}

func newTestService(t *testing.T) (*Service, *memory.Store, *captureNotifier) {
	t.Helper()
	st := memory.New()
	notifier := &captureNotifier{}
	recorder := audit.NewRecorder(st.Audit(), zap.NewNop())
	svc := NewService(st, recorder, notifier, zap.NewNop())

	st.AddSignalCategory(&models.SignalCategory{ID: 1, Name: "Ruido", Color: "", Active: true})
	st.AddSignalCategory(&models.SignalCategory{ID: 2, Name: "Paracrisis", Color: "", Active: true})
	st.AddSignalCategory(&models.SignalCategory{ID: 3, Name: "Crisis", Color: "#b71c1c", Active: true})
	st.AddAnalysisCategory(&models.AnalysisCategory{ID: 10, Name: "Desinformación", Active: true})
	st.AddAnalysisCategory(&models.AnalysisCategory{ID: 11, Name: "Suplantación", Active: true})
	st.AddSignal(&models.Signal{
		ID:         100,
		DetectedAt: time.Now().Add(-time.Hour),
		RiskScore:  42,
		CategoryID: 1,
		AnalysisID: 10,
		State:      models.StateDetected,
	})
	return svc, st, notifier
}

func testActor(st *memory.Store, t *testing.T) *models.CurrentUser {
	t.Helper()
	email := "analyst@sds.example"
	user := &models.User{Username: "analyst", Email: &email, FullName: "Ana Lista",
		AuthKind: models.AuthKindLocal, Active: true}
	require.NoError(t, st.Users().Create(context.Background(), user))
	return &models.CurrentUser{ID: user.ID, Username: user.Username, Email: user.Email,
		FullName: user.FullName, Active: true}
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *apperrors.Error, got %v", err)
	return appErr.Code
}

func ptr[T any](v T) *T { return &v }

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	meta := audit.RequestMeta{IP: "10.0.0.1"}

	t.Run("category change without confirmation is rejected", func(t *testing.T) {
		svc, st, notifier := newTestService(t)
		actor := testActor(st, t)

		_, err := svc.Update(ctx, 100, models.SignalUpdate{CategoryID: ptr(int64(2))}, actor, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
		assert.Contains(t, err.Error(), "revision required")
		assert.Empty(t, notifier.changes)

		sig, err := st.Signals().ByID(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sig.CategoryID)
	})

	t.Run("confirmed category change applies, records history and notifies", func(t *testing.T) {
		svc, st, notifier := newTestService(t)
		actor := testActor(st, t)

		view, err := svc.Update(ctx, 100, models.SignalUpdate{
			CategoryID:        ptr(int64(2)),
			ChangeDescription: "escalamiento por volumen",
			RevisionConfirmed: true,
		}, actor, meta)
		require.NoError(t, err)
		assert.Equal(t, int64(2), view.CategoryID)
		assert.Equal(t, "Paracrisis", view.CategoryName)

		rows, err := st.SignalHistory().ListBySignal(ctx, 100, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, models.SignalHistoryAction, rows[0].Action)
		assert.Equal(t, "escalamiento por volumen", rows[0].Description)
		assert.NotEmpty(t, rows[0].Delta)

		require.Len(t, notifier.changes, 1)
		change := notifier.changes[0]
		assert.Equal(t, "Ruido", change.FromCategory)
		assert.Equal(t, "Paracrisis", change.ToCategory)
		assert.Equal(t, "Ana Lista", change.ActorName)
		assert.Equal(t, "analyst@sds.example", change.ActorEmail)
		assert.True(t, change.Confirmed)
	})

	t.Run("writing the same category needs no confirmation", func(t *testing.T) {
		svc, st, notifier := newTestService(t)
		actor := testActor(st, t)

		_, err := svc.Update(ctx, 100, models.SignalUpdate{CategoryID: ptr(int64(1))}, actor, meta)
		require.NoError(t, err)
		assert.Empty(t, notifier.changes)

		rows, err := st.SignalHistory().ListBySignal(ctx, 100, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("unknown category is rejected", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)

		_, err := svc.Update(ctx, 100, models.SignalUpdate{
			CategoryID: ptr(int64(99)), RevisionConfirmed: true,
		}, actor, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})

	t.Run("score out of range is rejected", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)

		_, err := svc.Update(ctx, 100, models.SignalUpdate{RiskScore: ptr(100.5)}, actor, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))

		_, err = svc.Update(ctx, 100, models.SignalUpdate{RiskScore: ptr(-0.1)}, actor, meta)
		require.Error(t, err)
	})

	t.Run("state machine permits only declared transitions", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)

		// DETECTADA → VALIDADA skips review.
		_, err := svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateValidated)}, actor, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))

		_, err = svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateInReview)}, actor, meta)
		require.NoError(t, err)
		_, err = svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateValidated)}, actor, meta)
		require.NoError(t, err)

		view, err := svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateResolved)}, actor, meta)
		require.NoError(t, err)
		assert.Equal(t, models.StateResolved, view.State)
		assert.NotNil(t, view.ResolvedAt)

		// Terminal state refuses further movement.
		_, err = svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateInReview)}, actor, meta)
		require.Error(t, err)

		// Same-state write is allowed.
		_, err = svc.Update(ctx, 100, models.SignalUpdate{State: ptr(models.StateResolved)}, actor, meta)
		require.NoError(t, err)
	})

	t.Run("duplicate history rows inside the dedupe window are suppressed", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)

		patch := models.SignalUpdate{ChangeDescription: "nota del analista"}
		_, err := svc.Update(ctx, 100, patch, actor, meta)
		require.NoError(t, err)
		_, err = svc.Update(ctx, 100, patch, actor, meta)
		require.NoError(t, err)

		rows, err := st.SignalHistory().ListBySignal(ctx, 100, 10)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("history rows outside the window are kept", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)

		patch := models.SignalUpdate{ChangeDescription: "nota del analista"}
		_, err := svc.Update(ctx, 100, patch, actor, meta)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(10 * time.Second) }
		_, err = svc.Update(ctx, 100, patch, actor, meta)
		require.NoError(t, err)

		rows, err := st.SignalHistory().ListBySignal(ctx, 100, 10)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("notifier failure does not fail the update", func(t *testing.T) {
		svc, st, notifier := newTestService(t)
		notifier.err = errors.New("smtp down")
		actor := testActor(st, t)

		view, err := svc.Update(ctx, 100, models.SignalUpdate{
			CategoryID: ptr(int64(3)), RevisionConfirmed: true,
		}, actor, meta)
		require.NoError(t, err)
		assert.Equal(t, int64(3), view.CategoryID)
	})

	t.Run("unknown signal is not found", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		actor := testActor(st, t)
		_, err := svc.Update(ctx, 999, models.SignalUpdate{}, actor, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, appCode(t, err))
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("view resolves names and palette fallback colors", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		view, err := svc.Get(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "Ruido", view.CategoryName)
		assert.Equal(t, "Desinformación", view.AnalysisName)
		assert.Equal(t, "grey", view.Color)
	})

	t.Run("stored color wins over the palette", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		st.AddSignal(&models.Signal{ID: 101, CategoryID: 3, AnalysisID: 10,
			State: models.StateDetected, DetectedAt: time.Now()})

		view, err := svc.Get(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, "#b71c1c", view.Color)
	})

	t.Run("list pages signals", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		for i := int64(200); i < 205; i++ {
			st.AddSignal(&models.Signal{ID: i, CategoryID: 1, AnalysisID: 10,
				State: models.StateDetected, DetectedAt: time.Now()})
		}
		views, err := svc.List(ctx, 3, 0)
		require.NoError(t, err)
		assert.Len(t, views, 3)
	})

	t.Run("history of an unknown signal is not found", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.History(ctx, 999, 10)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, appCode(t, err))
	})
}

func TestDisplayColor(t *testing.T) {
	cases := []struct {
		name  string
		color string
		want  string
	}{
		{"Ruido informativo", "", "grey"},
		{"Alerta Verde", "", "green"},
		{"Amarillo", "", "yellow"},
		{"Paracrisis regional", "", "orange"},
		{"Crisis nacional", "", "red"},
		{"Código Rojo", "", "red"},
		{"Sin mapeo", "", "grey"},
		{"Crisis", "#123456", "#123456"},
	}
	for _, tc := range cases {
		got := displayColor(&models.SignalCategory{Name: tc.name, Color: tc.color})
		assert.Equal(t, tc.want, got, tc.name)
	}
}
