package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable marks transient transport failures: no connectivity,
// timeouts, 5xx responses. Callers leave local state pending and retry on
// the next cycle.
var ErrUnavailable = errors.New("remote store unavailable")

// StatusError is a non-transient per-record rejection (4xx) from the remote
// store. The offending record stays pending; the rest of a batch proceeds.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store rejected request: %d %s", e.Code, e.Message)
}

// IsTransient reports whether err should be retried on a later cycle
// rather than treated as a per-record failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Client speaks the remote store wire contract. Every request authenticates
// with the stable device identity and carries a bounded timeout.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
}

// NewClient creates a client for the given server, authenticating as deviceID.
func NewClient(baseURL, deviceID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
	}
}

// envelope is the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", c.deviceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

// CreateChat pushes a brand-new chat; the response carries the assigned _id.
func (c *Client) CreateChat(ctx context.Context, chat *Chat) (*Chat, error) {
	var out Chat
	if err := c.do(ctx, http.MethodPost, "/chats", chat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChat pushes changes to a chat already known to the server.
func (c *Client) UpdateChat(ctx context.Context, serverID string, chat *Chat) (*Chat, error) {
	var out Chat
	if err := c.do(ctx, http.MethodPut, "/chats/"+url.PathEscape(serverID), chat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats pulls the full chat snapshot, tombstones included.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var out []Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessage pushes a brand-new message under a server-known chat.
func (c *Client) CreateMessage(ctx context.Context, chatServerID string, msg *Message) (*Message, error) {
	var out Message
	path := "/chats/" + url.PathEscape(chatServerID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMessage pushes changes to a message already known to the server.
func (c *Client) UpdateMessage(ctx context.Context, serverID string, msg *Message) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(serverID), msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages pulls messages changed since the checkpoint (0 = everything),
// tombstones included.
func (c *Client) ListMessages(ctx context.Context, since int64) ([]Message, error) {
	path := "/messages"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var out []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser pulls the device's profile; nil when the server has none yet.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PutUser upserts the device's profile; the response carries the server _id.
func (c *Client) PutUser(ctx context.Context, user *User) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPut, "/users/me", user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
