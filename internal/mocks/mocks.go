package mocks

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"chat-engine/internal/models"
)

// BackendMock stands in for the server of record.
type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) FetchSessionUser(ctx context.Context) (models.User, error) {
	args := m.Called(ctx)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *BackendMock) FetchChannels(ctx context.Context) ([]models.Channel, error) {
	args := m.Called(ctx)
	var list []models.Channel
	if val := args.Get(0); val != nil {
		list = val.([]models.Channel)
	}
	return list, args.Error(1)
}

func (m *BackendMock) FetchMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *BackendMock) PostMessage(ctx context.Context, channelID, text string) (models.Message, error) {
	args := m.Called(ctx, channelID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *BackendMock) PostReaction(ctx context.Context, messageID, emoji string, action models.ReactionAction) error {
	args := m.Called(ctx, messageID, emoji, action)
	return args.Error(0)
}

func (m *BackendMock) FetchGlobalEmoteSet(ctx context.Context) ([]models.CachedEmote, error) {
	args := m.Called(ctx)
	var set []models.CachedEmote
	if val := args.Get(0); val != nil {
		set = val.([]models.CachedEmote)
	}
	return set, args.Error(1)
}

func (m *BackendMock) SearchEmotes(ctx context.Context, query string, page, limit int) ([]models.CachedEmote, error) {
	args := m.Called(ctx, query, page, limit)
	var set []models.CachedEmote
	if val := args.Get(0); val != nil {
		set = val.([]models.CachedEmote)
	}
	return set, args.Error(1)
}

func (m *BackendMock) FetchNotifications(ctx context.Context) ([]models.NotificationItem, error) {
	args := m.Called(ctx)
	var items []models.NotificationItem
	if val := args.Get(0); val != nil {
		items = val.([]models.NotificationItem)
	}
	return items, args.Error(1)
}

func (m *BackendMock) MarkNotificationRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *BackendMock) TranslateMessage(ctx context.Context, msg models.Message) mo.Option[string] {
	args := m.Called(ctx, msg)
	if val := args.Get(0); val != nil {
		return val.(mo.Option[string])
	}
	return mo.None[string]()
}

func (m *BackendMock) FetchStreamStatus(ctx context.Context, channelID string) (models.StreamStatus, error) {
	args := m.Called(ctx, channelID)
	var status models.StreamStatus
	if val := args.Get(0); val != nil {
		status = val.(models.StreamStatus)
	}
	return status, args.Error(1)
}

func (m *BackendMock) SubscribeChannel(ctx context.Context, channelID string) (<-chan models.Message, error) {
	args := m.Called(ctx, channelID)
	var ch <-chan models.Message
	switch val := args.Get(0).(type) {
	case chan models.Message:
		ch = val
	case <-chan models.Message:
		ch = val
	}
	return ch, args.Error(1)
}
