package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sds-platform/sds-core/internal/engines/signals"
	"go.uber.org/zap"
)

var categoryChangeTmpl = template.Must(template.New("category_change").Parse(`<html>
<body>
  <h2>Cambio de categoría de señal</h2>
  <p>La señal <strong>#{{.SignalID}}</strong> cambió de categoría:</p>
  <table>
    <tr><td>Categoría anterior</td><td><strong>{{.FromCategory}}</strong></td></tr>
    <tr><td>Categoría nueva</td><td><strong>{{.ToCategory}}</strong></td></tr>
    <tr><td>Realizado por</td><td>{{.ActorName}}</td></tr>
    <tr><td>Revisión confirmada</td><td>{{if .Confirmed}}Sí{{else}}No{{end}}</td></tr>
    <tr><td>Fecha</td><td>{{.OccurredAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
  </table>
</body>
</html>`))

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(`<html>
<body>
  <h2>Restablecimiento de contraseña</h2>
  <p>Se solicitó el restablecimiento de su contraseña. Use el siguiente
  token dentro de su periodo de validez:</p>
  <p><code>{{.Token}}</code></p>
  <p>Si usted no solicitó este cambio, ignore este mensaje.</p>
</body>
</html>`))

// Publisher mirrors category changes onto the event bus. Optional.
type Publisher interface {
	PublishCategoryChange(change signals.CategoryChange) error
}

// Dispatcher fans messages out to the distinct recipients of an event. It
// satisfies the notifier interfaces of the auth and signal engines.
type Dispatcher struct {
	backend     Backend
	publisher   Publisher
	coordinator string
	logger      *zap.Logger
}

// NewDispatcher creates the dispatcher. backend may be nil when email is not
// configured; publisher may be nil when the bus is disabled.
func NewDispatcher(backend Backend, publisher Publisher, coordinatorAddr string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		backend:     backend,
		publisher:   publisher,
		coordinator: coordinatorAddr,
		logger:      logger.With(zap.String("component", "notify")),
	}
}

// NotifyCategoryChange emails the coordinator, the actor and the assigned
// reviewer. One failed recipient does not stop the rest.
func (d *Dispatcher) NotifyCategoryChange(ctx context.Context, change signals.CategoryChange) error {
	if d.publisher != nil {
		if err := d.publisher.PublishCategoryChange(change); err != nil {
			d.logger.Warn("Event bus publish failed",
				zap.Int64("signal_id", change.SignalID), zap.Error(err))
		}
	}
	if d.backend == nil {
		return nil
	}

	var body bytes.Buffer
	if err := categoryChangeTmpl.Execute(&body, change); err != nil {
		return fmt.Errorf("rendering category change mail: %w", err)
	}
	msg := Message{
		Subject: fmt.Sprintf("Señal #%d: %s → %s", change.SignalID, change.FromCategory, change.ToCategory),
		HTML:    body.String(),
	}

	var failed int
	for _, to := range distinct(d.coordinator, change.ActorEmail, change.ReviewerEmail) {
		msg.To = to
		if err := d.backend.Send(ctx, msg); err != nil {
			failed++
			d.logger.Error("Notification delivery failed",
				zap.String("backend", d.backend.Name()),
				zap.String("recipient", to),
				zap.Int64("signal_id", change.SignalID),
				zap.Error(err))
			continue
		}
		d.logger.Info("Notification delivered",
			zap.String("recipient", to),
			zap.Int64("signal_id", change.SignalID))
	}
	if failed > 0 {
		return fmt.Errorf("%d notification deliveries failed", failed)
	}
	return nil
}

// SendPasswordReset emails a reset token to one address.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, resetToken string) error {
	if d.backend == nil {
		return fmt.Errorf("no email backend configured")
	}
	var body bytes.Buffer
	if err := passwordResetTmpl.Execute(&body, struct{ Token string }{resetToken}); err != nil {
		return fmt.Errorf("rendering reset mail: %w", err)
	}
	return d.backend.Send(ctx, Message{
		To:      to,
		Subject: "Restablecimiento de contraseña",
		HTML:    body.String(),
	})
}

// distinct drops empties and case-insensitive duplicates, keeping order.
func distinct(addrs ...string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		key := strings.ToLower(strings.TrimSpace(a))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
