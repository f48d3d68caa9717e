package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/marquee/internal/identity"
)

// MockAdapter implements Adapter for testing. It records sent messages and
// allows simulating inbound messages via SimulateInbound.
type MockAdapter struct {
	mu         sync.Mutex
	platform   identity.Platform
	enabled    bool
	connected  bool
	closed     bool
	connectErr error
	sendErr    error
	inbound    chan InboundMessage
	sent       []OutboundMessage
	botUserID  string
}

// NewMockAdapter creates an enabled MockAdapter with a buffered inbound channel.
func NewMockAdapter(p identity.Platform) *MockAdapter {
	return &MockAdapter{
		platform: p,
		enabled:  true,
		inbound:  make(chan InboundMessage, 100),
	}
}

// Platform returns the platform this mock serves.
func (m *MockAdapter) Platform() identity.Platform { return m.platform }

// Enabled reports whether the mock is enabled.
func (m *MockAdapter) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled toggles the enabled flag.
func (m *MockAdapter) SetEnabled(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = v
}

// FailConnect makes Connect return err.
func (m *MockAdapter) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// FailSend makes Send return err.
func (m *MockAdapter) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// Closed reports whether Close has been called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Platform == "" {
		msg.Platform = m.platform
	}
	m.inbound <- msg
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// MockPusher is a MockAdapter that can also push messages directly.
type MockPusher struct {
	*MockAdapter
	pmu     sync.Mutex
	pushed  []Pushed
	pushErr error
}

// Pushed records one Push call.
type Pushed struct {
	RawUserID string
	Response  Response
}

// NewMockPusher creates an enabled MockPusher.
func NewMockPusher(p identity.Platform) *MockPusher {
	return &MockPusher{MockAdapter: NewMockAdapter(p)}
}

// Push records the message.
func (m *MockPusher) Push(ctx context.Context, rawUserID string, resp Response) error {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushed = append(m.pushed, Pushed{RawUserID: rawUserID, Response: resp})
	return nil
}

// FailPush makes Push return err.
func (m *MockPusher) FailPush(err error) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.pushErr = err
}

// AllPushed returns a copy of all pushed messages.
func (m *MockPusher) AllPushed() []Pushed {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	out := make([]Pushed, len(m.pushed))
	copy(out, m.pushed)
	return out
}
