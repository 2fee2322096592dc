// Package notify fans tenant lifecycle events out to configured channels.
// Delivery is best effort: a failing channel is logged and never blocks or
// fails the operation that produced the event.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTenantProvisioned     EventType = "tenant.provisioned"
	EventTenantProvisionFailed EventType = "tenant.provision_failed"
	EventTenantArchived        EventType = "tenant.archived"
	EventTenantRestored        EventType = "tenant.restored"
	EventTenantPurged          EventType = "tenant.purged"
	EventPurgeNotice           EventType = "tenant.purge_notice"
	EventBackupCompleted       EventType = "backup.completed"
	EventBackupFailed          EventType = "backup.failed"
	EventRestoreCompleted      EventType = "restore.completed"
	EventRestoreFailed         EventType = "restore.failed"
	EventMaintenanceScheduled  EventType = "maintenance.scheduled"
	EventMaintenanceStarted    EventType = "maintenance.started"
	EventMaintenanceCompleted  EventType = "maintenance.completed"
	EventMaintenanceCancelled  EventType = "maintenance.cancelled"
	EventMaintenanceReminder   EventType = "maintenance.reminder"
)

type Event struct {
	Type     EventType      `json:"type"`
	TenantID uuid.UUID      `json:"tenant_id"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Channel delivers an event to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

type Notifier struct {
	channels []Channel
}

func New(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// Notify delivers the event to every channel, stamping At if unset.
// Failures are logged per channel; Notify itself never returns an error.
func (n *Notifier) Notify(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	for _, ch := range n.channels {
		if err := ch.Send(ctx, event); err != nil {
			log.Warn().
				Err(err).
				Str("channel", ch.Name()).
				Str("event", string(event.Type)).
				Str("tenant_id", event.TenantID.String()).
				Msg("notification delivery failed")
		}
	}
}
