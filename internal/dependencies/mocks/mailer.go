package mocks

import (
	"context"
	"sync"

	"github.com/thefall/sessionserver/internal/services/mail"
)

// MailMessage is one message captured by MockMailer
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// MockMailer records messages instead of delivering them
type MockMailer struct {
	mu       sync.Mutex
	messages []MailMessage

	// Err, when set, is returned from every Send
	Err error
}

// Ensure MockMailer implements Sender
var _ mail.Sender = (*MockMailer)(nil)

// NewMockMailer creates a MockMailer
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// Send records the message
func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, MailMessage{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of everything sent so far
func (m *MockMailer) Messages() []MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MailMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
