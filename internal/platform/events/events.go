// Package events publishes domain events (diagnosis recorded, report
// generated, test scheduled, ...) to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeDiagnosisRecorded  = "diagnosis.recorded"
	TypeReportGenerated    = "diagnosis.report_generated"
	TypeTestUpdated        = "test.updated"
	TypeAppointmentUpdated = "appointment.updated"
	TypePatientDeleted     = "patient.deleted"
	TypeArtifactReloaded   = "artifact.reloaded"
)

// Event is the envelope of every published message. The routing key equals
// Type.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// New builds an event with a fresh id and the JSON encoding of payload.
func New(eventType, resourceType, resourceID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Payload:      raw,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("resource_type", ev.ResourceType).
		Str("resource_id", ev.ResourceID).
		RawJSON("payload", ev.Payload).
		Msg("event published")
	return nil
}

// PublishBestEffort publishes ev and logs, rather than returns, any failure.
func PublishBestEffort(ctx context.Context, p Publisher, logger zerolog.Logger, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).
			Str("event_type", ev.Type).
			Str("resource_id", ev.ResourceID).
			Msg("event publish failed")
	}
}
