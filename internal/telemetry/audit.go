// Package telemetry emits audit records for session lifecycle and user
// actions.
package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Audit event types.
const (
	EventSessionStarted = "session_started"
	EventSessionClosed  = "session_closed"
	EventMessageSent    = "message_sent"
	EventSendRejected   = "send_rejected"
	EventChannelChanged = "channel_selected"
	EventReaction       = "reaction"
	EventAuditTest      = "audit_log"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	SessionID     string       `json:"session_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string            `json:"level"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Record is one audited action.
type Record struct {
	EventType string
	Level     string
	Text      string
	RequestID string
	SessionID string
	UserID    *string
	Fields    map[string]string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes a plain audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.Record(ctx, Record{EventType: EventAuditTest, Level: level, Text: text, RequestID: requestID, UserID: userID})
}

// Record publishes r. A nil emitter is a no-op.
func (e *AuditEmitter) Record(ctx context.Context, r Record) {
	if e == nil || e.publisher == nil {
		return
	}
	if r.Level == "" {
		r.Level = "INFO"
	}

	log.Printf("audit emit: event_type=%s level=%s request_id=%s session_id=%s text=%q", r.EventType, r.Level, r.RequestID, r.SessionID, r.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     r.EventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     r.RequestID,
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		Payload: AuditPayload{
			Level:  r.Level,
			Text:   r.Text,
			Fields: r.Fields,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed event_type=%s: %v", r.EventType, err)
	}
}
