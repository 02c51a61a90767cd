package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, srv.Client())
	require.NoError(t, err)
	return c.WithToken("tok-1")
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
}

func TestFetchSessionUserSendsBearer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u1","display_name":"Sam","tier":"High Roller"}`))
	}))

	user, err := c.FetchSessionUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, models.TierHighRoller, user.Tier)
}

func TestFetchChannelsAndMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"general","name":"General","tier_required":"standard","last_message_at":null},
			{"id":"vip","name":"VIP Lounge","tier_required":"vip"}]`))
	})
	mux.HandleFunc("/channels/general/messages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"m1","channel_id":"general","content":"hi","reaction_summary":{"🔥":2}}]`))
		case http.MethodPost:
			var body postMessageRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Hello world", body.Content)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"m2","channel_id":"general","content":"Hello world"}`))
		}
	})
	c := newTestClient(t, mux)

	channels, err := c.FetchChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, models.TierVIP, channels[1].TierRequired)
	assert.False(t, channels[0].LastMessageAt.IsPresent())

	msgs, err := c.FetchMessages(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].ReactionSummary["🔥"])

	posted, err := c.PostMessage(context.Background(), "general", "Hello world")
	require.NoError(t, err)
	assert.Equal(t, "m2", posted.ID)
}

func TestNon2xxIsTransportError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.FetchChannels(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestPostReactionRoutes(t *testing.T) {
	var seen []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/m1/reactions", r.URL.Path)
		if r.Method == http.MethodDelete {
			assert.Equal(t, "🔥", r.URL.Query().Get("emoji"))
		}
		seen = append(seen, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.PostReaction(context.Background(), "m1", "🔥", models.ReactionAdd))
	require.NoError(t, c.PostReaction(context.Background(), "m1", "🔥", models.ReactionRemove))
	assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, seen)
}

func TestSearchEmotesQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "pep", q.Get("query"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "16", q.Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"1","name":"pepeD","animated":true}]`))
	}))

	results, err := c.SearchEmotes(context.Background(), "pep", 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Animated)
}

func TestTranslateMessageNeverFails(t *testing.T) {
	ok := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translation":"hola"}`))
	}))
	assert.Equal(t, "hola", ok.TranslateMessage(context.Background(), models.Message{ID: "m1", Content: "hello"}).OrEmpty())

	failing := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	assert.False(t, failing.TranslateMessage(context.Background(), models.Message{ID: "m1"}).IsPresent())
}

func TestSubscribeChannelDeliversMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/channels/general/live"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.ChatEvent{Type: "typing"})
		_ = conn.WriteJSON(models.ChatEvent{Type: "message", Message: &models.Message{ID: "live-1", Content: "yo"}})
		_, _, _ = conn.ReadMessage()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := c.SubscribeChannel(ctx, "general")
	require.NoError(t, err)

	select {
	case msg := <-feed:
		assert.Equal(t, "live-1", msg.ID)
		assert.Equal(t, "general", msg.ChannelID)
	case <-time.After(2 * time.Second):
		t.Fatal("no live message")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-feed:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
