package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine runs the registered platform checks (database pool, event broker,
// mail relay) and aggregates them into one platform status. It remembers the
// previous aggregate so status transitions are logged exactly once instead
// of on every tick.
type Engine struct {
	mu         sync.RWMutex
	checkers   map[string]Checker
	lastStatus Status
	logger     *zap.Logger
	interval   time.Duration
	stopCh     chan struct{}
	running    bool
}

// NewEngine creates a health engine. A zero interval falls back to 3 seconds.
func NewEngine(logger *zap.Logger, interval time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval == 0 {
		interval = 3 * time.Second
	}

	return &Engine{
		checkers:   make(map[string]Checker),
		lastStatus: StatusUnknown,
		logger:     logger.With(zap.String("component", "health")),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Register adds a component check. Registering the same name again replaces
// the previous check.
func (e *Engine) Register(checker Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := checker.Name()
	e.checkers[name] = checker
	e.logger.Info("Watching component health", zap.String("name", name))
}

// Unregister removes a component check.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.checkers, name)
	e.logger.Info("Stopped watching component health", zap.String("name", name))
}

// LastStatus returns the aggregate of the most recent CheckAll.
func (e *Engine) LastStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStatus
}

// CheckAll runs every registered check concurrently and aggregates the
// outcome. Components that report unhealthy are logged individually so the
// operator sees which part of the platform is down, not just that one is.
func (e *Engine) CheckAll(ctx context.Context) *AggregatedResult {
	e.mu.RLock()
	checkers := make(map[string]Checker, len(e.checkers))
	for name, c := range e.checkers {
		checkers[name] = c
	}
	e.mu.RUnlock()

	type outcome struct {
		name   string
		result *Result
	}
	outcomes := make(chan outcome, len(checkers))

	for name, checker := range checkers {
		go func(n string, c Checker) {
			start := time.Now()
			r := c.Check(ctx)
			r.Duration = time.Since(start)
			outcomes <- outcome{name: n, result: r}
		}(name, checker)
	}

	results := make(map[string]*Result, len(checkers))
	for range checkers {
		o := <-outcomes
		results[o.name] = o.result
		if o.result.Status == StatusUnhealthy {
			e.logger.Warn("Component unhealthy",
				zap.String("name", o.name),
				zap.String("message", o.result.Message))
		}
	}

	overall := DetermineOverallStatus(results)

	e.mu.Lock()
	previous := e.lastStatus
	e.lastStatus = overall
	e.mu.Unlock()

	if overall != previous {
		e.logger.Info("Platform health changed",
			zap.String("from", string(previous)),
			zap.String("to", string(overall)))
	}

	return &AggregatedResult{
		OverallStatus: overall,
		Components:    results,
		Timestamp:     time.Now(),
	}
}

// Start runs CheckAll on the configured interval until the context ends or
// Stop is called. Transitions are logged by CheckAll itself.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Health engine started", zap.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.setStopped()
			return
		case <-e.stopCh:
			e.setStopped()
			return
		case <-ticker.C:
			e.CheckAll(ctx)
		}
	}
}

func (e *Engine) setStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.logger.Info("Health engine stopped")
}

// Stop ends a running Start loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	close(e.stopCh)
	e.stopCh = make(chan struct{})
}

// IsRunning reports whether the periodic loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
