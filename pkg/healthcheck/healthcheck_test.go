package healthcheck

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func result(name string, status Status) *Result {
	return &Result{ComponentName: name, Status: status, Timestamp: time.Now()}
}

func TestDetermineOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusUnknown},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unknown counts as degraded", []Status{StatusHealthy, StatusUnknown}, StatusDegraded},
		{"unhealthy dominates", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(map[string]*Result, len(tt.statuses))
			for i, st := range tt.statuses {
				name := fmt.Sprintf("c%d", i)
				results[name] = result(name, st)
			}
			assert.Equal(t, tt.want, DetermineOverallStatus(results))
		})
	}
}

func TestEngineCheckAll(t *testing.T) {
	engine := NewEngine(zap.NewNop(), 0)
	engine.Register(Named("database", func(ctx context.Context) *Result {
		return result("database", StatusHealthy)
	}))
	engine.Register(Named("broker", func(ctx context.Context) *Result {
		return result("broker", StatusUnhealthy)
	}))

	agg := engine.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, agg.OverallStatus)
	require.Len(t, agg.Components, 2)
	assert.Contains(t, agg.Components, "database")

	t.Run("unregister removes the component", func(t *testing.T) {
		engine.Unregister("broker")
		agg := engine.CheckAll(context.Background())
		assert.Equal(t, StatusHealthy, agg.OverallStatus)
		assert.Len(t, agg.Components, 1)
	})

	t.Run("last status tracks the transitions", func(t *testing.T) {
		engine := NewEngine(zap.NewNop(), 0)
		assert.Equal(t, StatusUnknown, engine.LastStatus())

		engine.Register(Named("database", func(ctx context.Context) *Result {
			return result("database", StatusHealthy)
		}))
		engine.CheckAll(context.Background())
		assert.Equal(t, StatusHealthy, engine.LastStatus())

		engine.Register(Named("broker", func(ctx context.Context) *Result {
			return result("broker", StatusDegraded)
		}))
		engine.CheckAll(context.Background())
		assert.Equal(t, StatusDegraded, engine.LastStatus())
	})
}

func TestReporter(t *testing.T) {
	engine := NewEngine(zap.NewNop(), 0)
	engine.Register(Named("database", func(ctx context.Context) *Result {
		return result("database", StatusHealthy)
	}))

	var published *AggregatedResult
	reporter := NewReporter(engine, func(ctx context.Context, r *AggregatedResult) error {
		published = r
		return nil
	}, zap.NewNop())

	require.NoError(t, reporter.Report(context.Background()))
	require.NotNil(t, published)
	assert.Equal(t, StatusHealthy, published.OverallStatus)

	t.Run("publisher failure surfaces", func(t *testing.T) {
		failing := NewReporter(engine, func(context.Context, *AggregatedResult) error {
			return fmt.Errorf("broker offline")
		}, zap.NewNop())
		assert.Error(t, failing.Report(context.Background()))
	})
}
