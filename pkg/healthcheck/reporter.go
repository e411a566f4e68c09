package healthcheck

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PublishFunc delivers an aggregated result to wherever the deployment wants
// it; the server wires it to the MQTT health topic.
type PublishFunc func(ctx context.Context, result *AggregatedResult) error

// Reporter mirrors the platform health onto the event bus so monitoring
// consoles see degradations without polling the HTTP surface. Every interval
// publishes, but only transitions are logged above debug.
type Reporter struct {
	engine     *Engine
	publisher  PublishFunc
	lastStatus Status
	logger     *zap.Logger
}

// NewReporter creates a health reporter.
func NewReporter(engine *Engine, publisher PublishFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reporter{
		engine:     engine,
		publisher:  publisher,
		lastStatus: StatusUnknown,
		logger:     logger.With(zap.String("component", "health_reporter")),
	}
}

// Report runs the checks once and publishes the aggregate.
func (r *Reporter) Report(ctx context.Context) error {
	result := r.engine.CheckAll(ctx)

	if r.publisher != nil {
		if err := r.publisher(ctx, result); err != nil {
			r.logger.Error("Failed to publish platform health", zap.Error(err))
			return err
		}
	}

	if result.OverallStatus != r.lastStatus {
		r.logger.Info("Published health transition",
			zap.String("from", string(r.lastStatus)),
			zap.String("to", string(result.OverallStatus)))
	} else {
		r.logger.Debug("Published platform health",
			zap.String("status", string(result.OverallStatus)),
			zap.Int("components", len(result.Components)))
	}
	r.lastStatus = result.OverallStatus

	return nil
}

// StartReporting publishes on the given interval until the context ends.
func (r *Reporter) StartReporting(ctx context.Context, interval time.Duration) {
	r.logger.Info("Health reporter started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Health reporter stopped")
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				r.logger.Error("Health report failed", zap.Error(err))
			}
		}
	}
}
