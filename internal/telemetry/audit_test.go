package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-engine/internal/mocks"
)

func TestRecordPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "audit.chat-engine", "chat-engine", "test")
	user := "u1"

	pub.On("Publish", mock.Anything, "audit.chat-engine", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == EventMessageSent &&
			env.SessionID == "s1" &&
			env.Payload.Level == "INFO" &&
			env.Payload.Fields["channel_id"] == "general" &&
			*env.UserID == "u1"
	})).Return(nil).Once()

	emitter.Record(context.Background(), Record{
		EventType: EventMessageSent,
		Text:      "message sent",
		SessionID: "s1",
		UserID:    &user,
		Fields:    map[string]string{"channel_id": "general"},
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "req", nil)
	})
}
