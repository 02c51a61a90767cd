// Package backend is the HTTP/JSON client for the server of record.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chat-engine/internal/emotes"
	"chat-engine/internal/errs"
	"chat-engine/internal/models"
)

const DefaultTimeout = 15 * time.Second

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Client talks to the server of record on behalf of one bearer token.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	live    LiveOptions
}

// NewHTTPClient returns an http.Client whose transport is traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// New builds a client without credentials. Use WithToken to bind one.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &Client{baseURL: u, http: httpClient, live: DefaultLiveOptions()}, nil
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	out := *c
	out.token = token
	return &out
}

// WithLiveOptions returns a copy of c using opts for live feeds.
func (c *Client) WithLiveOptions(opts LiveOptions) *Client {
	out := *c
	out.live = opts
	return &out
}

func (c *Client) FetchSessionUser(ctx context.Context) (models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return models.User{}, errs.Transport("fetch session user", err)
	}
	user.Tier = models.ParseTier(string(user.Tier))
	return user, nil
}

func (c *Client) FetchChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := c.do(ctx, http.MethodGet, "/channels", nil, nil, &channels); err != nil {
		return nil, errs.Transport("fetch channels", err)
	}
	for i := range channels {
		channels[i].TierRequired = models.ParseTier(string(channels[i].TierRequired))
	}
	return channels, nil
}

func (c *Client) FetchMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID)+"/messages", nil, nil, &msgs); err != nil {
		return nil, errs.Transport("fetch messages", err)
	}
	return msgs, nil
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) (models.Message, error) {
	var msg models.Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, postMessageRequest{Content: text}, &msg); err != nil {
		return models.Message{}, errs.Transport("post message", err)
	}
	return msg, nil
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (c *Client) PostReaction(ctx context.Context, messageID, emoji string, action models.ReactionAction) error {
	path := "/messages/" + url.PathEscape(messageID) + "/reactions"
	var err error
	switch action {
	case models.ReactionAdd:
		err = c.do(ctx, http.MethodPost, path, nil, reactionRequest{Emoji: emoji}, nil)
	case models.ReactionRemove:
		err = c.do(ctx, http.MethodDelete, path, url.Values{"emoji": {emoji}}, nil, nil)
	default:
		err = fmt.Errorf("unknown reaction action %q", action)
	}
	if err != nil {
		return errs.Transport("post reaction", err)
	}
	return nil
}

func (c *Client) FetchGlobalEmoteSet(ctx context.Context) ([]models.CachedEmote, error) {
	var set []models.CachedEmote
	if err := c.do(ctx, http.MethodGet, "/emotes/global", nil, nil, &set); err != nil {
		return nil, errs.Transport("fetch global emote set", err)
	}
	return set, nil
}

func (c *Client) SearchEmotes(ctx context.Context, query string, page, limit int) ([]models.CachedEmote, error) {
	if limit <= 0 {
		limit = emotes.DefaultPageSize
	}
	q := url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	var results []models.CachedEmote
	if err := c.do(ctx, http.MethodGet, "/emotes/search", q, nil, &results); err != nil {
		return nil, errs.Transport("search emotes", err)
	}
	return results, nil
}

func (c *Client) FetchNotifications(ctx context.Context) ([]models.NotificationItem, error) {
	var items []models.NotificationItem
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, nil, &items); err != nil {
		return nil, errs.Transport("fetch notifications", err)
	}
	return items, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil); err != nil {
		return errs.Transport("mark notification read", err)
	}
	return nil
}

type translateRequest struct {
	Content string `json:"content"`
}

type translateResponse struct {
	Translation string `json:"translation"`
}

// TranslateMessage never fails to the caller; any error yields None.
func (c *Client) TranslateMessage(ctx context.Context, msg models.Message) mo.Option[string] {
	var resp translateResponse
	path := "/messages/" + url.PathEscape(msg.ID) + "/translate"
	if err := c.do(ctx, http.MethodPost, path, nil, translateRequest{Content: msg.Content}, &resp); err != nil {
		log.Printf("translate failed message_id=%s err=%v", msg.ID, err)
		return mo.None[string]()
	}
	if strings.TrimSpace(resp.Translation) == "" {
		return mo.None[string]()
	}
	return mo.Some(resp.Translation)
}

func (c *Client) FetchStreamStatus(ctx context.Context, channelID string) (models.StreamStatus, error) {
	var status models.StreamStatus
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID)+"/stream", nil, nil, &status); err != nil {
		return models.StreamStatus{}, errs.Transport("fetch stream status", err)
	}
	return status, nil
}

// endpoint joins an already escaped path onto the base url.
func (c *Client) endpoint(path string, query url.Values) string {
	out := c.baseURL.String() + path
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
