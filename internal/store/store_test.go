package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/errs"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/ratelimit"
)

var (
	general = models.Channel{ID: "general", Name: "General", Category: "community", TierRequired: models.TierStandard}
	flavors = models.Channel{ID: "flavors", Name: "Flavors", Category: "community", TierRequired: models.TierStandard}
	vip     = models.Channel{ID: "vip", Name: "VIP Lounge", Category: "lounges", TierRequired: models.TierVIP}

	standardUser = models.User{ID: "u1", DisplayName: "Sam", Tier: models.TierStandard}
)

func newTestStore(t *testing.T, backend *mocks.BackendMock, user models.User) (*Store, *ratelimit.Limiter) {
	t.Helper()
	backend.On("SubscribeChannel", mock.Anything, mock.Anything).Return(nil, errors.New("no live feed")).Maybe()
	limiter := ratelimit.New(ratelimit.DefaultPolicy(), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := New(ctx, backend, user, limiter, Options{MaxLength: 500, Location: time.UTC}, nil)
	t.Cleanup(s.Close)
	t.Cleanup(limiter.Reset)
	return s, limiter
}

func TestSendScenarioStandardTier(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, limiter := newTestStore(t, backend, standardUser)

	backend.On("FetchChannels", mock.Anything).Return([]models.Channel{general, flavors, vip}, nil).Once()
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{
		{ID: "m1", ChannelID: "general", UserID: "u2", Content: "hey", CreatedAt: time.Now().Add(-time.Minute)},
	}, nil).Once()
	backend.On("PostMessage", mock.Anything, "general", "Hello world").
		Return(models.Message{ID: "m2", ChannelID: "general", UserID: "u1", Content: "Hello world", CreatedAt: time.Now()}, nil).Once()

	require.NoError(t, s.LoadChannels(context.Background()))
	require.Len(t, s.State().Channels, 3)
	assert.False(t, s.Active().IsPresent(), "loading channels does not auto-select")

	require.NoError(t, s.SelectChannel(context.Background(), general))
	before := len(s.State().Messages)

	posted, err := s.SendMessage(context.Background(), "Hello world")
	require.NoError(t, err)
	assert.Equal(t, "m2", posted.ID)

	st := s.State()
	assert.Len(t, st.Messages, before+1)
	assert.Equal(t, "m2", st.Messages[len(st.Messages)-1].ID)
	assert.False(t, st.Messages[len(st.Messages)-1].Pending)

	rl := limiter.State()
	assert.True(t, rl.IsLimited)
	assert.Greater(t, rl.RemainingSeconds, 0)
	backend.AssertExpectations(t)
}

func TestSendWhileLimitedNeverCallsNetwork(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, limiter := newTestStore(t, backend, standardUser)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	require.NoError(t, s.SelectChannel(context.Background(), general))

	require.True(t, limiter.Engage(models.TierStandard))
	_, err := s.SendMessage(context.Background(), "again")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, s.State().Messages)
	backend.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendValidation(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)

	_, err := s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrNoActiveChannel)

	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	require.NoError(t, s.SelectChannel(context.Background(), general))

	_, err = s.SendMessage(context.Background(), strings.Repeat("A", 501))
	assert.ErrorIs(t, err, errs.ErrDraftTooLong)
	assert.Empty(t, s.State().Messages)

	_, err = s.SendMessage(context.Background(), "   \n ")
	assert.ErrorIs(t, err, errs.ErrEmptyDraft)
	backend.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFailureKeepsOptimisticMessage(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, models.User{ID: "w", DisplayName: "Whale", Tier: models.TierWhale})
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	backend.On("PostMessage", mock.Anything, "general", "gm").Return(nil, assert.AnError).Once()
	require.NoError(t, s.SelectChannel(context.Background(), general))

	msg, err := s.SendMessage(context.Background(), "gm")
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
	assert.True(t, strings.HasPrefix(msg.ID, localIDPrefix))

	st := s.State()
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Failed)
	assert.False(t, st.Messages[0].Pending)
	assert.Equal(t, models.TierWhale, st.Messages[0].UserTier)
	assert.NotEmpty(t, st.Error)

	s.ClearError()
	assert.Empty(t, s.State().Error)
}

func TestSelectChannelDropsStaleLoad(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)

	started := make(chan struct{})
	release := make(chan struct{})
	backend.On("FetchMessages", mock.Anything, "general").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]models.Message{{ID: "old", ChannelID: "general"}}, nil).Once()
	backend.On("FetchMessages", mock.Anything, "flavors").
		Return([]models.Message{{ID: "new", ChannelID: "flavors"}}, nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.SelectChannel(context.Background(), general) }()
	<-started

	require.NoError(t, s.SelectChannel(context.Background(), flavors))
	close(release)
	require.NoError(t, <-done)

	st := s.State()
	active, ok := st.Active.Get()
	require.True(t, ok)
	assert.Equal(t, "flavors", active.ID)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "new", st.Messages[0].ID)
	assert.False(t, st.LoadingMessages)
}

func TestSelectChannelReplacesWindowAndResetsLimiter(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, limiter := newTestStore(t, backend, standardUser)
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{
		{ID: "b", CreatedAt: t0.Add(time.Minute)},
		{ID: "a", CreatedAt: t0},
		{ID: "b", CreatedAt: t0.Add(time.Minute)},
	}, nil).Once()
	backend.On("FetchMessages", mock.Anything, "flavors").Return(nil, nil).Once()

	require.NoError(t, s.SelectChannel(context.Background(), general))
	st := s.State()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "a", st.Messages[0].ID)
	assert.Equal(t, "general", st.Messages[0].ChannelID)

	s.SetAtBottom(false)
	s.Receive(models.Message{ID: "c", ChannelID: "general", CreatedAt: t0.Add(2 * time.Minute)})
	assert.Equal(t, 1, s.State().NewMessages)

	require.True(t, limiter.Engage(models.TierStandard))
	require.NoError(t, s.SelectChannel(context.Background(), flavors))
	st = s.State()
	assert.Empty(t, st.Messages)
	assert.Zero(t, st.NewMessages)
	assert.False(t, limiter.State().IsLimited)
}

func TestReloadKeepsCooldown(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, limiter := newTestStore(t, backend, standardUser)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Twice()
	backend.On("PostMessage", mock.Anything, "general", "one").
		Return(models.Message{ID: "m1", ChannelID: "general", UserID: "u1", Content: "one", CreatedAt: time.Now()}, nil).Once()

	require.NoError(t, s.SelectChannel(context.Background(), general))
	_, err := s.SendMessage(context.Background(), "one")
	require.NoError(t, err)
	require.True(t, limiter.State().IsLimited)

	require.NoError(t, s.ReloadMessages(context.Background()))
	assert.True(t, limiter.State().IsLimited)

	_, err = s.SendMessage(context.Background(), "two")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	backend.AssertNumberOfCalls(t, "PostMessage", 1)
	backend.AssertNumberOfCalls(t, "FetchMessages", 2)
}

func TestReselectingActiveChannelKeepsCooldown(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, limiter := newTestStore(t, backend, standardUser)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Twice()

	require.NoError(t, s.SelectChannel(context.Background(), general))
	require.True(t, limiter.Engage(models.TierStandard))
	require.NoError(t, s.SelectChannel(context.Background(), general))
	assert.True(t, limiter.State().IsLimited)
}

func TestSendFailureAfterSwitchDoesNotFlagNewChannel(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, models.User{ID: "w", DisplayName: "Whale", Tier: models.TierWhale})
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	backend.On("FetchMessages", mock.Anything, "flavors").Return([]models.Message{}, nil).Once()

	started := make(chan struct{})
	release := make(chan struct{})
	backend.On("PostMessage", mock.Anything, "general", "gm").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, assert.AnError).Once()

	require.NoError(t, s.SelectChannel(context.Background(), general))
	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "gm")
		done <- err
	}()
	<-started

	require.NoError(t, s.SelectChannel(context.Background(), flavors))
	close(release)
	err := <-done
	assert.True(t, errs.IsTransport(err))
	assert.Empty(t, s.State().Error)
}

func TestSelectLockedChannel(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)
	err := s.SelectChannel(context.Background(), vip)
	assert.ErrorIs(t, err, errs.ErrChannelLocked)
	assert.False(t, s.Active().IsPresent())
}

func TestLoadErrorsAreRecoverable(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)
	backend.On("FetchChannels", mock.Anything).Return(nil, assert.AnError).Once()
	backend.On("FetchChannels", mock.Anything).Return([]models.Channel{general}, nil).Once()

	err := s.LoadChannels(context.Background())
	assert.True(t, errs.IsTransport(err))
	assert.NotEmpty(t, s.State().Error)

	s.ClearError()
	require.NoError(t, s.LoadChannels(context.Background()))
	assert.Len(t, s.State().Channels, 1)
}

func TestReceiveAutoScrollAndBacklog(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)
	backend.On("FetchChannels", mock.Anything).Return([]models.Channel{general, flavors}, nil).Once()
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	require.NoError(t, s.LoadChannels(context.Background()))
	require.NoError(t, s.SelectChannel(context.Background(), general))

	now := time.Now()
	seq := s.State().ScrollSeq
	assert.True(t, s.Receive(models.Message{ID: "1", ChannelID: "general", CreatedAt: now}))
	assert.Equal(t, seq+1, s.State().ScrollSeq)
	assert.False(t, s.Receive(models.Message{ID: "1", ChannelID: "general", CreatedAt: now}), "duplicate ids are ignored")

	s.SetAtBottom(false)
	assert.False(t, s.Receive(models.Message{ID: "2", ChannelID: "general", CreatedAt: now}))
	assert.False(t, s.Receive(models.Message{ID: "3", ChannelID: "general", CreatedAt: now}))
	assert.Equal(t, 2, s.State().NewMessages)

	assert.False(t, s.Receive(models.Message{ID: "x", ChannelID: "flavors", CreatedAt: now}))
	ch, _ := s.Channel("flavors")
	assert.True(t, ch.LastMessageAt.IsPresent())

	s.JumpToBottom()
	st := s.State()
	assert.Zero(t, st.NewMessages)
	assert.True(t, st.AtBottom)
	assert.Len(t, st.Messages, 3)
}

func TestReceiveEchoReconcilesOptimisticMessage(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, models.User{ID: "u1", Tier: models.TierWhale})
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()
	require.NoError(t, s.SelectChannel(context.Background(), general))

	echo := models.Message{ID: "srv-1", ChannelID: "general", UserID: "u1", Content: "hello", CreatedAt: time.Now()}
	backend.On("PostMessage", mock.Anything, "general", "hello").
		Run(func(mock.Arguments) { s.Receive(echo) }).
		Return(echo, nil).Once()

	_, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	st := s.State()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "srv-1", st.Messages[0].ID)
	assert.False(t, st.Messages[0].Pending)
}

func TestLiveSubscriptionFeedsReceive(t *testing.T) {
	backend := new(mocks.BackendMock)
	feed := make(chan models.Message, 1)
	backend.On("SubscribeChannel", mock.Anything, "general").Return(feed, nil).Once()
	s, _ := newTestStore(t, backend, standardUser)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{}, nil).Once()

	require.NoError(t, s.SelectChannel(context.Background(), general))
	feed <- models.Message{ID: "live-1", ChannelID: "general", CreatedAt: time.Now()}

	require.Eventually(t, func() bool { return len(s.State().Messages) == 1 }, time.Second, 5*time.Millisecond)
}

func TestUpdateReactions(t *testing.T) {
	backend := new(mocks.BackendMock)
	s, _ := newTestStore(t, backend, standardUser)
	backend.On("FetchMessages", mock.Anything, "general").Return([]models.Message{{ID: "m1"}}, nil).Once()
	require.NoError(t, s.SelectChannel(context.Background(), general))

	msg, err := s.UpdateReactions("m1", func(summary map[string]int) bool {
		summary["🔥"]++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, msg.ReactionSummary["🔥"])

	_, err = s.UpdateReactions("missing", func(map[string]int) bool { return false })
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
