// Package notify tells requesters when their media is ready.
package notify

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/relay"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "{emoji} {title} ({year}) is ready to watch!"

// UserLookup resolves a platform identity to its user.
type UserLookup interface {
	GetUser(id identity.ID) *models.User
}

// Sender pushes a response to a user without an inbound context.
type Sender interface {
	CanPush(p identity.Platform) bool
	Deliver(ctx context.Context, userID identity.ID, resp relay.Response) bool
}

// DispatcherOpts configures a Dispatcher.
type DispatcherOpts struct {
	Enabled       bool
	Template      string
	WebhookSecret string
	Users         UserLookup
	Sender        Sender
}

// Dispatcher formats completion messages and sends them through the router.
type Dispatcher struct {
	enabled  bool
	template string
	secret   string
	users    UserLookup
	sender   Sender
}

// NewDispatcher creates a Dispatcher. Users and Sender are required even
// when disabled so the wiring is checked at startup.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Users == nil {
		return nil, errors.New("notify: users is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("notify: sender is required")
	}
	if strings.TrimSpace(opts.Template) == "" {
		opts.Template = DefaultTemplate
	}
	return &Dispatcher{
		enabled:  opts.Enabled,
		template: opts.Template,
		secret:   opts.WebhookSecret,
		users:    opts.Users,
		sender:   opts.Sender,
	}, nil
}

// NotifyComplete tells the requester that req finished downloading. It
// reports whether a message was handed to the router.
func (d *Dispatcher) NotifyComplete(ctx context.Context, req *models.MediaRequest) bool {
	if !d.enabled || req == nil {
		return false
	}
	userID := identity.ID(req.RequestedBy)
	parts, err := identity.Parse(req.RequestedBy)
	if err != nil {
		log.Printf("notify: request %s: %v", req.ID, err)
		return false
	}

	user := d.users.GetUser(userID)
	if user == nil {
		log.Printf("notify: request %s: no user for %s", req.ID, userID)
		return false
	}
	if !user.NotificationsEnabled {
		return false
	}
	if !d.sender.CanPush(parts.Platform) {
		log.Printf("notify: warning: %s cannot receive push messages; skipping %q for %s", parts.Platform, req.Title, userID)
		return false
	}

	text := Format(d.template, req)
	if !d.sender.Deliver(ctx, userID, relay.Response{Text: text}) {
		return false
	}
	log.Printf("notify: sent completion for %q to %s", req.Title, userID)
	return true
}

// VerifyWebhookSecret compares provided with the configured secret in
// constant time. With no secret configured every value is accepted.
func (d *Dispatcher) VerifyWebhookSecret(provided string) bool {
	if d.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(d.secret)) == 1
}

// Format fills {emoji}, {title}, {year} and {mediaType} in tmpl. An unknown
// year drops a "({year})" group entirely.
func Format(tmpl string, req *models.MediaRequest) string {
	year := ""
	if req.Year != nil {
		year = strconv.Itoa(*req.Year)
	} else {
		tmpl = strings.NewReplacer(" ({year})", "", "({year})", "").Replace(tmpl)
	}
	r := strings.NewReplacer(
		"{emoji}", emoji(req.MediaType),
		"{title}", req.Title,
		"{year}", year,
		"{mediaType}", req.MediaType.Label(),
	)
	return r.Replace(tmpl)
}

func emoji(mt models.MediaType) string {
	if mt == models.MediaTVShow {
		return "📺"
	}
	return "🎬"
}
