// Package audit emits one structured log line per state-changing action
// taken by the orchestrator, the concrete form of "structured logs"
// referenced by the metrics-export non-goal.
package audit

import (
	"log/slog"
	"time"
)

// EventType categorizes an audited action.
type EventType string

const (
	EventDeployCreated   EventType = "deploy.created"
	EventDeployUpdated   EventType = "deploy.updated"
	EventDeployFailed    EventType = "deploy.failed"
	EventCleanup         EventType = "cleanup.removed"
	EventCleanupFailed   EventType = "cleanup.failed"
	EventWebhookRejected EventType = "webhook.rejected"
	EventReconcileSweep  EventType = "reconciler.sweep"
	EventSystemStart     EventType = "system.start"
	EventSystemShutdown  EventType = "system.shutdown"
)

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp    time.Time
	EventType    EventType
	DeploymentID string
	Actor        string
	Status       Status
	Message      string
}

// Logger emits Events as structured slog records.
type Logger struct {
	logger  *slog.Logger
	enabled bool
}

// NewLogger creates an audit Logger. When enabled is false, Log is a no-op.
func NewLogger(log *slog.Logger, enabled bool) *Logger {
	return &Logger{logger: log.With("subsystem", "audit"), enabled: enabled}
}

// Log records a single audit event at a level derived from its Status.
func (l *Logger) Log(event Event) {
	if !l.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	args := []any{
		"event_type", event.EventType,
		"deployment_id", event.DeploymentID,
		"actor", event.Actor,
		"status", event.Status,
		"message", event.Message,
	}

	if event.Status == StatusFailure {
		l.logger.Error("audit_event", args...)
		return
	}
	l.logger.Info("audit_event", args...)
}

// LogDeploy records the outcome of a deploy or update action (C9).
func (l *Logger) LogDeploy(deploymentID, actor string, updated bool, err error) {
	eventType := EventDeployCreated
	if updated {
		eventType = EventDeployUpdated
	}
	status, msg := StatusSuccess, "deployment ready"
	if err != nil {
		eventType = EventDeployFailed
		status, msg = StatusFailure, err.Error()
	}
	l.Log(Event{EventType: eventType, DeploymentID: deploymentID, Actor: actor, Status: status, Message: msg})
}

// LogCleanup records the outcome of a cleanup action (C9/C10).
func (l *Logger) LogCleanup(deploymentID, actor string, err error) {
	if err != nil {
		l.Log(Event{EventType: EventCleanupFailed, DeploymentID: deploymentID, Actor: actor, Status: StatusFailure, Message: err.Error()})
		return
	}
	l.Log(Event{EventType: EventCleanup, DeploymentID: deploymentID, Actor: actor, Status: StatusSuccess, Message: "deployment removed"})
}

// LogWebhookRejected records a webhook request rejected by signature
// verification or the repository allowlist (C9).
func (l *Logger) LogWebhookRejected(reason string) {
	l.Log(Event{EventType: EventWebhookRejected, Actor: "webhook", Status: StatusFailure, Message: reason})
}

// LogReconcileSweep records a completed reconciler pass (C10).
func (l *Logger) LogReconcileSweep(examined, cleaned int) {
	l.Log(Event{
		EventType: EventReconcileSweep,
		Actor:     "reconciler",
		Status:    StatusSuccess,
		Message:   "sweep complete",
	})
	l.logger.Info("reconciler sweep", "examined", examined, "cleaned", cleaned)
}

// LogSystemStart records daemon startup.
func (l *Logger) LogSystemStart(version string) {
	l.Log(Event{EventType: EventSystemStart, Actor: "daemon", Status: StatusSuccess, Message: "previewd started v" + version})
}

// LogSystemShutdown records daemon shutdown.
func (l *Logger) LogSystemShutdown(reason string, graceful bool) {
	status := StatusSuccess
	if !graceful {
		status = StatusFailure
	}
	l.Log(Event{EventType: EventSystemShutdown, Actor: "daemon", Status: status, Message: reason})
}
