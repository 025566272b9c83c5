package notify

import (
	"context"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*NoopAlerter)(nil)

// NoopAlerter logs alerts instead of delivering them. Used when no operator
// channel is configured.
type NoopAlerter struct {
	log *zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	aLog := logger.With().Str("component", "NoopAlerter").Logger()
	return &NoopAlerter{log: &aLog}
}

func (n *NoopAlerter) Send(ctx context.Context, alert adapter.Alert) error {
	n.log.Warn().
		Str("severity", string(alert.Severity)).
		Str("task_id", alert.TaskID).
		Str("identity", alert.Identity).
		Msg(alert.Message)
	return nil
}
