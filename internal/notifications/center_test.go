package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/errs"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
)

func item(id string, read bool, age time.Duration) models.NotificationItem {
	return models.NotificationItem{
		ID:        id,
		Type:      models.NotificationReply,
		Title:     "reply " + id,
		IsRead:    read,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestRefreshOrdersAndCountsUnread(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("FetchNotifications", mock.Anything).Return([]models.NotificationItem{
		item("old", true, time.Hour),
		item("new", false, time.Minute),
		item("mid", false, 10*time.Minute),
	}, nil).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Refresh(context.Background()))
	st := c.State()
	require.Len(t, st.Items, 3)
	assert.Equal(t, "new", st.Items[0].ID)
	assert.Equal(t, "old", st.Items[2].ID)
	assert.Equal(t, 2, st.UnreadCount)
	assert.True(t, st.Pulsing)
}

func TestRefreshFailureKeepsList(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("FetchNotifications", mock.Anything).Return([]models.NotificationItem{item("a", false, 0)}, nil).Once()
	backend.On("FetchNotifications", mock.Anything).Return(nil, assert.AnError).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Refresh(context.Background()))
	err := c.Refresh(context.Background())
	assert.True(t, errs.IsTransport(err))
	st := c.State()
	assert.Len(t, st.Items, 1)
	assert.NotEmpty(t, st.Error)
}

func TestOverlappingRefreshKeepsLatest(t *testing.T) {
	backend := new(mocks.BackendMock)
	started := make(chan struct{})
	release := make(chan struct{})
	backend.On("FetchNotifications", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]models.NotificationItem{item("old", false, time.Hour)}, assert.AnError).Once()
	backend.On("FetchNotifications", mock.Anything).
		Return([]models.NotificationItem{item("new", false, 0)}, nil).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()
	<-started
	require.NoError(t, c.Refresh(context.Background()))
	close(release)
	assert.NoError(t, <-done)

	st := c.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, "new", st.Items[0].ID)
	assert.Empty(t, st.Error)
	assert.False(t, st.Loading)
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("FetchNotifications", mock.Anything).Return([]models.NotificationItem{
		item("a", false, 0), item("b", false, time.Minute),
	}, nil).Once()
	backend.On("MarkNotificationRead", mock.Anything, "a").Return(nil).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)
	require.NoError(t, c.Refresh(context.Background()))

	require.NoError(t, c.MarkAsRead(context.Background(), "a"))
	assert.Equal(t, 1, c.UnreadCount())
	require.NoError(t, c.MarkAsRead(context.Background(), "a"))
	assert.Equal(t, 1, c.UnreadCount())
	backend.AssertNumberOfCalls(t, "MarkNotificationRead", 1)

	assert.ErrorIs(t, c.MarkAsRead(context.Background(), "zzz"), errs.ErrNotFound)
}

func TestMarkAsReadKeepsLocalStateOnRemoteFailure(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("MarkNotificationRead", mock.Anything, "a").Return(assert.AnError).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)
	c.Push(item("a", false, 0))

	require.NoError(t, c.MarkAsRead(context.Background(), "a"))
	assert.Zero(t, c.UnreadCount())
}

func TestMarkAllAsRead(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("FetchNotifications", mock.Anything).Return([]models.NotificationItem{
		item("a", false, 0), item("b", true, time.Minute), item("c", false, 2*time.Minute),
	}, nil).Once()
	backend.On("MarkNotificationRead", mock.Anything, "a").Return(nil).Once()
	backend.On("MarkNotificationRead", mock.Anything, "c").Return(assert.AnError).Once()
	c := New(backend, time.Hour, nil)
	t.Cleanup(c.Close)
	require.NoError(t, c.Refresh(context.Background()))

	c.MarkAllAsRead(context.Background())
	assert.Zero(t, c.UnreadCount())
	for _, it := range c.State().Items {
		assert.True(t, it.IsRead)
	}
	backend.AssertExpectations(t)

	c.MarkAllAsRead(context.Background())
	backend.AssertNumberOfCalls(t, "MarkNotificationRead", 2)
}

func TestPulseClearsItself(t *testing.T) {
	c := New(new(mocks.BackendMock), 20*time.Millisecond, nil)
	t.Cleanup(c.Close)

	c.Pulse()
	assert.True(t, c.State().Pulsing)
	require.Eventually(t, func() bool { return !c.State().Pulsing }, time.Second, 5*time.Millisecond)
}

func TestPushDedupesAndPulses(t *testing.T) {
	changes := 0
	c := New(new(mocks.BackendMock), time.Hour, func() { changes++ })
	t.Cleanup(c.Close)

	assert.True(t, c.Push(item("a", false, 0)))
	assert.False(t, c.Push(item("a", false, 0)))
	st := c.State()
	assert.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.UnreadCount)
	assert.True(t, st.Pulsing)
	assert.Positive(t, changes)

	c.SetDropdownOpen(true)
	assert.True(t, c.State().DropdownOpen)
}
