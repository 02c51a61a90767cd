package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationDelivery(t *testing.T) {
	d, err := ParseNotificationDelivery([]byte(`{"user_id":"u1","notification":{"id":"n1","title":"hi","type":"mention"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", d.UserID)
	assert.Equal(t, NotificationMention, d.Notification.Type)
	assert.False(t, d.Notification.CreatedAt.IsZero())

	d, err = ParseNotificationDelivery([]byte(`{"user_id":"u1","notification":{"id":"n2"}}`))
	require.NoError(t, err)
	assert.Equal(t, NotificationSystem, d.Notification.Type)

	_, err = ParseNotificationDelivery([]byte(`{"notification":{"id":"n1"}}`))
	assert.Error(t, err)
	_, err = ParseNotificationDelivery([]byte(`not json`))
	assert.Error(t, err)
}
