package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/relay"
)

type fakeUsers map[identity.ID]*models.User

func (f fakeUsers) GetUser(id identity.ID) *models.User { return f[id] }

func newTestDispatcher(t *testing.T, enabled bool) (*Dispatcher, *relay.MockPusher) {
	t.Helper()
	users := fakeUsers{
		"sms:+15551234567": {ID: "alice", NotificationsEnabled: true},
		"sms:+15550000000": {ID: "quiet", NotificationsEnabled: false},
		"discord:42":       {ID: "bob", NotificationsEnabled: true},
	}
	router := relay.NewRouter(relay.RouterOpts{Out: io.Discard})
	sms := relay.NewMockPusher(identity.SMS)
	router.RegisterAdapter(sms)
	router.RegisterAdapter(relay.NewMockAdapter(identity.Discord))
	if err := sms.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d, err := NewDispatcher(DispatcherOpts{
		Enabled:       enabled,
		WebhookSecret: "s3cret",
		Users:         users,
		Sender:        router,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d, sms
}

func inception(by string) *models.MediaRequest {
	return &models.MediaRequest{
		ID:          "req-1",
		MediaType:   models.MediaMovie,
		Title:       "Inception",
		Year:        models.IntPtr(2010),
		TmdbID:      27205,
		RequestedBy: by,
		Status:      models.StatusCompleted,
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	if _, err := NewDispatcher(DispatcherOpts{Sender: relay.NewRouter(relay.RouterOpts{})}); err == nil {
		t.Error("expected error without users")
	}
	if _, err := NewDispatcher(DispatcherOpts{Users: fakeUsers{}}); err == nil {
		t.Error("expected error without sender")
	}
}

func TestNotifyComplete_PushesFormattedText(t *testing.T) {
	d, sms := newTestDispatcher(t, true)
	if !d.NotifyComplete(context.Background(), inception("sms:+15551234567")) {
		t.Fatal("NotifyComplete = false, want true")
	}
	pushed := sms.AllPushed()
	if len(pushed) != 1 {
		t.Fatalf("pushed %d messages, want 1", len(pushed))
	}
	if pushed[0].RawUserID != "+15551234567" {
		t.Errorf("raw user id = %q", pushed[0].RawUserID)
	}
	if want := "🎬 Inception (2010) is ready to watch!"; pushed[0].Response.Text != want {
		t.Errorf("text = %q, want %q", pushed[0].Response.Text, want)
	}
}

func TestNotifyComplete_Skips(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		by      string
	}{
		{"disabled", false, "sms:+15551234567"},
		{"unknown user", true, "sms:+19999999999"},
		{"notifications off", true, "sms:+15550000000"},
		{"platform cannot push", true, "discord:42"},
		{"malformed requester", true, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sms := newTestDispatcher(t, tt.enabled)
			if d.NotifyComplete(context.Background(), inception(tt.by)) {
				t.Error("NotifyComplete = true, want false")
			}
			if n := len(sms.AllPushed()); n != 0 {
				t.Errorf("pushed %d messages, want 0", n)
			}
		})
	}
}

func TestNotifyComplete_PushFailure(t *testing.T) {
	d, sms := newTestDispatcher(t, true)
	sms.FailPush(errors.New("push failed"))
	if d.NotifyComplete(context.Background(), inception("sms:+15551234567")) {
		t.Error("NotifyComplete = true after push failure")
	}
}

func TestFormat(t *testing.T) {
	show := &models.MediaRequest{MediaType: models.MediaTVShow, Title: "Severance"}
	if got, want := Format(DefaultTemplate, show), "📺 Severance is ready to watch!"; got != want {
		t.Errorf("Format(no year) = %q, want %q", got, want)
	}
	got := Format("{title} ({year}) [{mediaType}]", inception("sms:1"))
	if want := "Inception (2010) [movie]"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestVerifyWebhookSecret(t *testing.T) {
	d, _ := newTestDispatcher(t, true)
	if !d.VerifyWebhookSecret("s3cret") {
		t.Error("matching secret rejected")
	}
	if d.VerifyWebhookSecret("wrong") || d.VerifyWebhookSecret("") {
		t.Error("wrong secret accepted")
	}

	open, err := NewDispatcher(DispatcherOpts{Users: fakeUsers{}, Sender: relay.NewRouter(relay.RouterOpts{})})
	if err != nil {
		t.Fatal(err)
	}
	if !open.VerifyWebhookSecret("anything") {
		t.Error("empty secret should accept every value")
	}
}
