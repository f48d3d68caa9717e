// Package sms implements the relay Adapter for SMS through a Twilio-compatible
// REST API. Inbound messages arrive on an HTTP webhook served by gin.
package sms

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/relay"
)

// DefaultBaseURL is the Twilio REST endpoint.
const DefaultBaseURL = "https://api.twilio.com"

// emptyTwiML acknowledges an inbound webhook without an inline reply; the
// reply is sent through the REST API once the turn finishes.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// AdapterOpts holds parameters for creating an SMS Adapter.
type AdapterOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string // E.164 sender number
	BaseURL    string // defaults to DefaultBaseURL
	HTTPClient *http.Client
}

// Adapter implements relay.Adapter and relay.Pusher for SMS.
type Adapter struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan relay.InboundMessage
}

// New creates an SMS Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.AccountSID == "" {
		return nil, fmt.Errorf("sms: account sid is required")
	}
	if opts.AuthToken == "" {
		return nil, fmt.Errorf("sms: auth token is required")
	}
	if opts.FromNumber == "" {
		return nil, fmt.Errorf("sms: from number is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		from:       opts.FromNumber,
		baseURL:    base,
		httpClient: hc,
		inbound:    make(chan relay.InboundMessage, 100),
	}, nil
}

// Platform returns identity.SMS.
func (a *Adapter) Platform() identity.Platform { return identity.SMS }

// Enabled reports whether the adapter has credentials.
func (a *Adapter) Enabled() bool { return a.accountSID != "" && a.authToken != "" }

// Connect marks the adapter ready. The REST API is stateless.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("sms: adapter already closed")
	}
	a.connected = true
	return nil
}

// Listen returns the channel fed by InboundHandler.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("sms: not connected")
	}
	return a.inbound, nil
}

// Send replies to the user who sent the inbound message.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	to := msg.UserID
	if to == "" {
		to = msg.ChannelID
	}
	return a.send(ctx, to, msg.Text, msg.MediaURLs)
}

// Push sends resp to rawUserID (an E.164 number) without an inbound message.
func (a *Adapter) Push(ctx context.Context, rawUserID string, resp relay.Response) error {
	return a.send(ctx, rawUserID, resp.Text, resp.MediaURLs)
}

func (a *Adapter) send(ctx context.Context, to, body string, media []string) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("sms: not connected")
	}
	if to == "" {
		return fmt.Errorf("sms: no recipient specified")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.from)
	form.Set("Body", body)
	for _, m := range media {
		form.Add("MediaUrl", m)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.baseURL, url.PathEscape(a.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.SetBasicAuth(a.accountSID, a.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send to %s: %w", to, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: send to %s: status %d: %s", to, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// InboundHandler returns the gin handler for the provider's inbound
// webhook. It enqueues the message and acknowledges with empty TwiML.
func (a *Adapter) InboundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from := strings.TrimSpace(c.PostForm("From"))
		body := c.PostForm("Body")
		if from == "" {
			c.String(http.StatusBadRequest, "missing From")
			return
		}

		msg := relay.InboundMessage{
			Platform:  identity.SMS,
			ChannelID: from,
			UserID:    from,
			Text:      body,
			Timestamp: time.Now(),
		}
		if !a.enqueue(msg) {
			c.String(http.StatusServiceUnavailable, "not accepting messages")
			return
		}
		c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(emptyTwiML))
	}
}

func (a *Adapter) enqueue(msg relay.InboundMessage) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.connected {
		return false
	}
	select {
	case a.inbound <- msg:
		return true
	default:
		log.Printf("sms: inbound buffer full, dropping message from %s", msg.UserID)
		return false
	}
}

// Close stops accepting inbound messages.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.inbound)
	return nil
}
