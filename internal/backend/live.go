package backend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
)

const eventMessage = "message"

// LiveOptions tune the live channel feed.
type LiveOptions struct {
	HandshakeTimeout time.Duration
	Buffer           int
}

func DefaultLiveOptions() LiveOptions {
	return LiveOptions{HandshakeTimeout: 10 * time.Second, Buffer: 32}
}

func (c *Client) liveURL(channelID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String() + "/channels/" + url.PathEscape(channelID) + "/live"
}

// SubscribeChannel opens the live feed of a channel. Messages arrive on the
// returned channel until ctx is cancelled or the server hangs up; the
// channel is closed in both cases.
func (c *Client) SubscribeChannel(ctx context.Context, channelID string) (<-chan models.Message, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.live.HandshakeTimeout,
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := dialer.DialContext(ctx, c.liveURL(channelID), header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, errs.Transport("subscribe channel", err)
	}

	buffer := c.live.Buffer
	if buffer <= 0 {
		buffer = DefaultLiveOptions().Buffer
	}
	out := make(chan models.Message, buffer)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var evt models.ChatEvent
			if err := conn.ReadJSON(&evt); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("live feed closed channel_id=%s err=%v", channelID, err)
				}
				return
			}
			if evt.Type != eventMessage || evt.Message == nil {
				continue
			}
			msg := *evt.Message
			if msg.ChannelID == "" {
				msg.ChannelID = channelID
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
