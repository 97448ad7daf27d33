package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thefall/sessionserver/internal/protocol"
)

// Frame is one decoded server message
type Frame map[string]any

// ID returns the frame id, or false when it has none
func (f Frame) ID() (int64, bool) {
	id, ok := f["id"].(float64)
	return int64(id), ok
}

// Notify returns the notification name of a push frame
func (f Frame) Notify() string {
	s, _ := f["notify"].(string)
	return s
}

// ServerError is an error reply from the server
type ServerError struct {
	Kind    string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (%s %d)", e.Message, e.Kind, e.Code)
}

// ErrLoginFailed is returned when the server rejects the credentials
var ErrLoginFailed = errors.New("login failed")

// Client speaks the session protocol over one websocket connection
type Client struct {
	serverURL string
	timeout   time.Duration

	conn     *websocket.Conn
	nextID   int64
	username string
	token    string

	// Pushes received while waiting for replies, oldest first
	pending []Frame
}

// NewClient creates a Client; nothing is dialled until Connect
func NewClient(serverURL string, timeout time.Duration) *Client {
	return &Client{serverURL: serverURL, timeout: timeout}
}

// Connect dials the server and consumes the greeting
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.serverURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to %s: HTTP %d: %w", c.serverURL, resp.StatusCode, err)
		}
		return fmt.Errorf("connect to %s: %w", c.serverURL, err)
	}
	c.conn = conn

	greeting, err := c.read(ctx)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("read greeting: %w", err)
	}
	if len(greeting) == 0 || greeting[0]["command"] != "ON_CONNECT" {
		_ = c.Close()
		return errors.New("server did not greet the connection")
	}
	return nil
}

// Close sends a close frame and drops the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Login authenticates the connection; later Authed calls use the returned token
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	frame, err := c.Call(ctx, "login", map[string]any{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	var result LoginResult
	if err := decode(frame["result"], &result); err != nil {
		return nil, err
	}
	if !result.Status || result.Authentication == nil {
		return nil, ErrLoginFailed
	}
	c.username = username
	c.token = *result.Authentication
	return &result, nil
}

// Username returns the logged-in user, if any
func (c *Client) Username() string {
	return c.username
}

// Authed sends a command carrying the session credentials
func (c *Client) Authed(ctx context.Context, command string, kwargs map[string]any) (Frame, error) {
	args, err := c.credentials(kwargs)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, command, args)
}

// Relay sends an authenticated command without waiting; relays are only answered on error
func (c *Client) Relay(ctx context.Context, command string, kwargs map[string]any) error {
	args, err := c.credentials(kwargs)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, command, args)
	return err
}

// ErrNotLoggedIn is returned by authenticated calls before Login
var ErrNotLoggedIn = errors.New("this command needs --username and --password")

func (c *Client) credentials(kwargs map[string]any) (map[string]any, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}
	args := map[string]any{"root": c.username, "authentication": c.token}
	for k, v := range kwargs {
		args[k] = v
	}
	return args, nil
}

// Call sends a command and waits for its reply. Pushes that arrive first are kept for Next.
func (c *Client) Call(ctx context.Context, command string, kwargs map[string]any) (Frame, error) {
	id, err := c.send(ctx, command, kwargs)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for {
		frames, err := c.read(callCtx)
		if err != nil {
			return nil, fmt.Errorf("await %s: %w", command, err)
		}
		var reply Frame
		for _, frame := range frames {
			if fid, ok := frame.ID(); ok && fid == id && reply == nil {
				reply = frame
				continue
			}
			c.pending = append(c.pending, frame)
		}
		if reply != nil {
			return reply, replyError(reply)
		}
	}
}

// Next returns the next pushed frame, waiting until one arrives or ctx ends
func (c *Client) Next(ctx context.Context) (Frame, error) {
	for len(c.pending) == 0 {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		frames, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		c.pending = append(c.pending, frames...)
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame, nil
}

// read waits for one websocket message and decodes every frame in it
func (c *Client) read(ctx context.Context) ([]Frame, error) {
	deadline, _ := ctx.Deadline() // zero clears the deadline
	_ = c.conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}

	var frames []Frame
	for _, segment := range protocol.SplitFrames(data) {
		var frame Frame
		if err := json.Unmarshal(segment, &frame); err != nil {
			return nil, fmt.Errorf("decode server frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (c *Client) send(ctx context.Context, command string, kwargs map[string]any) (int64, error) {
	if err := c.Connect(ctx); err != nil {
		return 0, err
	}
	c.nextID++
	id := c.nextID

	msg := protocol.Encode(map[string]any{"id": id, "command": command, "kwargs": kwargs})
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, append(msg, protocol.Delimiter)); err != nil {
		return 0, fmt.Errorf("send %s: %w", command, err)
	}
	return id, nil
}

func replyError(reply Frame) error {
	if reply["error"] != true {
		return nil
	}
	var serverErr ServerError
	if err := decode(reply["result"], &serverErr); err != nil || serverErr.Kind == "" {
		return fmt.Errorf("server returned an error: %v", reply["result"])
	}
	return &serverErr
}

func decode(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// httpURL maps the websocket URL to the server's plain HTTP base URL
func httpURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	return u.String(), nil
}

// Health fetches GET /health
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	base, err := httpURL(c.serverURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := &http.Client{Timeout: c.timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var result HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// Drain returns and forgets every push received so far
func (c *Client) Drain() []Frame {
	out := c.pending
	c.pending = nil
	return out
}
