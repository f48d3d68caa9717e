// Package telegram implements the relay Adapter for Telegram using long polling.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/relay"
)

// pollTimeout is the long-poll timeout in seconds.
const pollTimeout = 60

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter implements relay.Adapter for a Telegram bot. Private chats and
// group messages addressed to the bot are both accepted.
type Adapter struct {
	bot       botAPI
	token     string
	botUserID string
	mu        sync.Mutex
	connected bool
	closed    bool
	listening bool
	inbound   chan relay.InboundMessage
	done      chan struct{}
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken string
	// For testing: inject a mock bot instead of the real Bot API.
	Bot       botAPI
	BotUserID string
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		bot:       opts.Bot,
		token:     opts.BotToken,
		botUserID: opts.BotUserID,
		inbound:   make(chan relay.InboundMessage, 100),
		done:      make(chan struct{}),
	}, nil
}

// Platform returns identity.Telegram.
func (a *Adapter) Platform() identity.Platform { return identity.Telegram }

// Enabled reports whether the adapter has credentials.
func (a *Adapter) Enabled() bool { return a.token != "" || a.bot != nil }

// Connect authorizes the bot token against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.bot == nil {
		bot, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: authorize: %w", err)
		}
		log.Printf("telegram: authorized as %s", bot.Self.UserName)
		a.bot = bot
		a.botUserID = strconv.FormatInt(bot.Self.ID, 10)
	}
	a.connected = true
	return nil
}

// Listen starts long polling and returns the inbound channel. Must be
// called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	if a.listening {
		return a.inbound, nil
	}
	a.listening = true

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := a.bot.GetUpdatesChan(cfg)
	go a.pump(ctx, updates)
	return a.inbound, nil
}

func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if msg, ok := a.toInbound(u); ok {
				a.deliver(msg)
			}
		}
	}
}

// toInbound converts an update to an InboundMessage. Commands lose their
// slash and bot suffix; /start maps to help.
func (a *Adapter) toInbound(u tgbotapi.Update) (relay.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return relay.InboundMessage{}, false
	}
	text := m.Text
	if m.IsCommand() {
		switch cmd := m.Command(); cmd {
		case "start":
			text = "help"
		default:
			text = strings.TrimSpace(cmd + " " + m.CommandArguments())
		}
	}
	return relay.InboundMessage{
		Platform:  identity.Telegram,
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		UserName:  m.From.UserName,
		Text:      text,
		Timestamp: m.Time(),
	}, true
}

func (a *Adapter) deliver(msg relay.InboundMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.inbound <- msg:
	default:
		log.Printf("telegram: inbound buffer full, dropping message from %s", msg.UserID)
	}
}

// Send replies into the originating chat. Each media URL is sent as a
// photo after the text.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChannelID, err)
	}
	if msg.Text != "" {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, msg.Text)); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	for _, u := range msg.MediaURLs {
		if _, err := a.bot.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(u))); err != nil {
			return fmt.Errorf("telegram: send photo: %w", err)
		}
	}
	return nil
}

// Close stops polling and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.done)
	if a.listening {
		a.bot.StopReceivingUpdates()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's own Telegram user id.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}
