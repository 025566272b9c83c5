package adapter

import "context"

type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is one operator-facing event: a structural failure, a blocked
// account, anything that needs a human rather than a retry.
type Alert struct {
	Severity AlertSeverity
	TaskID   string
	Identity string
	Message  string
}

// Alerter delivers alerts to the operator channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}
