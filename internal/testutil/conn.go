package testutil

import (
	"encoding/json"
	"sync"

	"github.com/thefall/sessionserver/internal/model"
)

// FakeConn records outbound messages in memory
type FakeConn struct {
	id   model.ConnID
	addr string

	mu       sync.Mutex
	messages [][]byte
	closed   bool

	// Full makes Send report a dropped message
	Full bool
}

// NewFakeConn creates a FakeConn with the given id
func NewFakeConn(id model.ConnID) *FakeConn {
	return &FakeConn{id: id, addr: "127.0.0.1:0"}
}

// ID returns the connection id
func (c *FakeConn) ID() model.ConnID { return c.id }

// RemoteAddr returns a fixed loopback address
func (c *FakeConn) RemoteAddr() string { return c.addr }

// Send records msg unless the connection is full or closed
func (c *FakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Full || c.closed {
		return false
	}
	c.messages = append(c.messages, append([]byte(nil), msg...))
	return true
}

// Close makes further sends fail
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Messages returns the raw messages sent so far
func (c *FakeConn) Messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

// Frames decodes every message as a JSON object
func (c *FakeConn) Frames() []map[string]any {
	var frames []map[string]any
	for _, msg := range c.Messages() {
		var frame map[string]any
		if err := json.Unmarshal(msg, &frame); err == nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Reset discards recorded messages
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
