// Package relay connects chat platforms to the conversation handler. It
// holds one Adapter per platform, pumps inbound messages to a single
// Handler and routes replies and pushes back out.
package relay

import (
	"context"
	"time"

	"github.com/zulandar/marquee/internal/identity"
)

// Adapter is the interface that platform-specific implementations must satisfy.
type Adapter interface {
	// Platform names the platform this adapter serves.
	Platform() identity.Platform

	// Enabled reports whether the adapter is configured for use.
	Enabled() bool

	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the adapter is closed. Listen must only
	// be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send replies into the channel/thread an inbound message came from.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Pusher is implemented by adapters that can message a user directly,
// without an inbound message to reply to.
type Pusher interface {
	Push(ctx context.Context, rawUserID string, resp Response) error
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  identity.Platform
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread/conversation identifier (empty if top-level)
	UserID    string    // raw platform user id
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage is a reply to be sent into a channel or thread.
type OutboundMessage struct {
	ChannelID string
	ThreadID  string
	// UserID is the raw id of the user being answered, for platforms that
	// address replies to users rather than channels.
	UserID    string
	Text      string
	MediaURLs []string
}

// Response is what the conversation handler produces for one turn.
type Response struct {
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// UnavailableResponse is returned when no handler is registered.
var UnavailableResponse = Response{Text: "Sorry, the request service is unavailable right now. Please try again later."}

// Handler processes one conversation turn.
type Handler interface {
	Handle(ctx context.Context, userID identity.ID, text string) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, userID identity.ID, text string) Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, userID identity.ID, text string) Response {
	return f(ctx, userID, text)
}
