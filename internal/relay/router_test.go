package relay

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/marquee/internal/identity"
)

// Compile-time interface compliance checks.
var (
	_ Adapter     = (*MockAdapter)(nil)
	_ BotUserIDer = (*MockAdapter)(nil)
	_ Pusher      = (*MockPusher)(nil)
)

// waitFor polls condition fn until it returns true or timeout expires.
func waitFor(t *testing.T, fn func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("waitFor timed out after %v", timeout)
}

func newTestRouter() (*Router, *bytes.Buffer) {
	var out bytes.Buffer
	return NewRouter(RouterOpts{Out: &out, DrainTimeout: time.Second}), &out
}

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		return Response{Text: "echo " + userID.String() + ": " + text}
	})
}

func TestDispatch_NoHandlerReturnsUnavailable(t *testing.T) {
	r, _ := newTestRouter()
	resp := r.Dispatch(context.Background(), identity.ID("sms:+1"), "hi")
	if resp.Text != UnavailableResponse.Text {
		t.Errorf("resp = %q, want unavailable", resp.Text)
	}
}

func TestDispatch_ForwardsToHandler(t *testing.T) {
	r, _ := newTestRouter()
	r.SetHandler(echoHandler())
	resp := r.Dispatch(context.Background(), identity.ID("slack:U1"), "find heat")
	if resp.Text != "echo slack:U1: find heat" {
		t.Errorf("resp = %q", resp.Text)
	}
}

func TestRegisterAdapter_LastWriteWins(t *testing.T) {
	r, _ := newTestRouter()
	first := NewMockAdapter(identity.Discord)
	second := NewMockAdapter(identity.Discord)
	r.RegisterAdapter(first)
	r.RegisterAdapter(second)
	got, ok := r.Adapter(identity.Discord)
	if !ok || got != second {
		t.Fatal("expected second adapter to replace the first")
	}
}

func TestDeliver_UnregisteredPlatformIsSilent(t *testing.T) {
	r, _ := newTestRouter()
	if r.Deliver(context.Background(), identity.ID("telegram:5"), Response{Text: "x"}) {
		t.Error("deliver to unregistered platform should report false")
	}
}

func TestDeliver_DisabledPlatformIsSilent(t *testing.T) {
	r, _ := newTestRouter()
	p := NewMockPusher(identity.SMS)
	p.SetEnabled(false)
	r.RegisterAdapter(p)
	if r.Deliver(context.Background(), identity.ID("sms:+1"), Response{Text: "x"}) {
		t.Error("deliver to disabled adapter should report false")
	}
	if len(p.AllPushed()) != 0 {
		t.Error("disabled adapter should not receive pushes")
	}
}

func TestDeliver_MalformedIDIsSilent(t *testing.T) {
	r, _ := newTestRouter()
	if r.Deliver(context.Background(), identity.ID("nocolon"), Response{Text: "x"}) {
		t.Error("malformed id should report false")
	}
}

func TestDeliver_NonPusherIsSilent(t *testing.T) {
	r, _ := newTestRouter()
	r.RegisterAdapter(NewMockAdapter(identity.Discord))
	if r.Deliver(context.Background(), identity.ID("discord:1"), Response{Text: "x"}) {
		t.Error("non-pusher should report false")
	}
	if r.CanPush(identity.Discord) {
		t.Error("CanPush should be false for a reply-only adapter")
	}
}

func TestDeliver_PushesRawID(t *testing.T) {
	r, _ := newTestRouter()
	p := NewMockPusher(identity.SMS)
	r.RegisterAdapter(p)
	if !r.CanPush(identity.SMS) {
		t.Fatal("CanPush(sms) = false")
	}
	if !r.Deliver(context.Background(), identity.ID("sms:+1:555"), Response{Text: "ready"}) {
		t.Fatal("deliver reported false")
	}
	pushed := p.AllPushed()
	if len(pushed) != 1 || pushed[0].RawUserID != "+1:555" || pushed[0].Response.Text != "ready" {
		t.Errorf("pushed = %+v", pushed)
	}
}

func TestDeliver_PushErrorIsSwallowed(t *testing.T) {
	r, _ := newTestRouter()
	p := NewMockPusher(identity.SMS)
	p.FailPush(errors.New("carrier down"))
	r.RegisterAdapter(p)
	if r.Deliver(context.Background(), identity.ID("sms:+1"), Response{Text: "x"}) {
		t.Error("failed push should report false")
	}
}

func TestStart_PartialFailureIsDegradedNotFatal(t *testing.T) {
	r, out := newTestRouter()
	r.SetHandler(echoHandler())
	good := NewMockAdapter(identity.Discord)
	bad := NewMockAdapter(identity.Slack)
	bad.FailConnect(errors.New("invalid token"))
	disabled := NewMockAdapter(identity.Telegram)
	disabled.SetEnabled(false)
	r.RegisterAdapter(good)
	r.RegisterAdapter(bad)
	r.RegisterAdapter(disabled)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop(ctx)

	if !strings.Contains(out.String(), "1 of 2 enabled adapters online") {
		t.Errorf("output = %q", out.String())
	}

	good.SimulateInbound(InboundMessage{ChannelID: "C1", UserID: "42", Text: "hello"})
	waitFor(t, func() bool { return good.SentCount() == 1 }, 2*time.Second)
	msg, _ := good.LastSent()
	if msg.ChannelID != "C1" || msg.Text != "echo discord:42: hello" {
		t.Errorf("reply = %+v", msg)
	}
}

func TestStart_Twice(t *testing.T) {
	r, _ := newTestRouter()
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop(ctx)
	if err := r.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
}

func TestPump_FiltersSelfAndEmptyMessages(t *testing.T) {
	r, _ := newTestRouter()
	var calls atomic.Int32
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		calls.Add(1)
		return Response{Text: "ok"}
	}))
	a := NewMockAdapter(identity.Discord)
	a.SetBotUserID("BOT")
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)
	defer r.Stop(ctx)

	a.SimulateInbound(InboundMessage{UserID: "BOT", Text: "my own reply"})
	a.SimulateInbound(InboundMessage{UserID: "7", Text: "   "})
	a.SimulateInbound(InboundMessage{UserID: "7", Text: "real"})
	waitFor(t, func() bool { return a.SentCount() == 1 }, 2*time.Second)
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestPump_SameUserTurnsRunInOrder(t *testing.T) {
	r, _ := newTestRouter()
	var mu sync.Mutex
	var seen []string
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		if text == "first" {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		return Response{Text: text}
	}))
	a := NewMockAdapter(identity.Telegram)
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)
	defer r.Stop(ctx)

	a.SimulateInbound(InboundMessage{UserID: "9", Text: "first"})
	a.SimulateInbound(InboundMessage{UserID: "9", Text: "second"})
	waitFor(t, func() bool { return a.SentCount() == 2 }, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Errorf("order = %v, want [first second]", seen)
	}
}

func TestPump_DifferentUsersRunConcurrently(t *testing.T) {
	r, _ := newTestRouter()
	release := make(chan struct{})
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		if text == "slow" {
			<-release
		}
		return Response{Text: text}
	}))
	a := NewMockAdapter(identity.Discord)
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)
	defer r.Stop(ctx)

	a.SimulateInbound(InboundMessage{UserID: "1", Text: "slow"})
	a.SimulateInbound(InboundMessage{UserID: "2", Text: "fast"})
	waitFor(t, func() bool { return a.SentCount() == 1 }, 2*time.Second)
	msg, _ := a.LastSent()
	if msg.Text != "fast" {
		t.Errorf("first reply = %q, want fast", msg.Text)
	}
	close(release)
	waitFor(t, func() bool { return a.SentCount() == 2 }, 2*time.Second)
}

func TestReply_ChunksLongText(t *testing.T) {
	r, _ := newTestRouter()
	long := strings.Repeat("word ", 1000) // 5000 bytes
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		return Response{Text: long, MediaURLs: []string{"http://img/p.jpg"}}
	}))
	a := NewMockAdapter(identity.Discord)
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)
	defer r.Stop(ctx)

	a.SimulateInbound(InboundMessage{UserID: "1", Text: "go"})
	waitFor(t, func() bool { return a.SentCount() == 3 }, 2*time.Second)
	sent := a.AllSent()
	for i, m := range sent {
		if len(m.Text) > MessageLimit(identity.Discord) {
			t.Errorf("chunk %d length %d exceeds limit", i, len(m.Text))
		}
	}
	if len(sent[0].MediaURLs) != 1 || len(sent[1].MediaURLs) != 0 {
		t.Error("media urls should ride on the first chunk only")
	}
}

func TestStop_DrainsInFlightTurns(t *testing.T) {
	r, _ := newTestRouter()
	started := make(chan struct{})
	release := make(chan struct{})
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		close(started)
		<-release
		return Response{Text: "done"}
	}))
	a := NewMockAdapter(identity.Discord)
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)

	a.SimulateInbound(InboundMessage{UserID: "1", Text: "go"})
	<-started

	stopped := make(chan struct{})
	go func() {
		r.Stop(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight turn finished")
	case <-time.After(50 * time.Millisecond):
	}
	if a.Closed() {
		t.Fatal("adapter closed before drain")
	}

	close(release)
	<-stopped
	if a.SentCount() != 1 {
		t.Errorf("sent = %d, want the drained turn's reply", a.SentCount())
	}
	if !a.Closed() {
		t.Error("adapter should be closed after Stop")
	}
	if resp := r.Dispatch(ctx, identity.ID("discord:1"), "late"); resp.Text != UnavailableResponse.Text {
		t.Errorf("dispatch after stop = %q, want unavailable", resp.Text)
	}
}

func TestStop_DrainTimeout(t *testing.T) {
	var out bytes.Buffer
	r := NewRouter(RouterOpts{Out: &out, DrainTimeout: 20 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	r.SetHandler(HandlerFunc(func(ctx context.Context, userID identity.ID, text string) Response {
		<-block
		return Response{}
	}))
	a := NewMockAdapter(identity.Discord)
	r.RegisterAdapter(a)
	ctx := context.Background()
	r.Start(ctx)
	a.SimulateInbound(InboundMessage{UserID: "1", Text: "go"})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not honour the drain timeout")
	}
	if !a.Closed() {
		t.Error("adapter should be closed after drain timeout")
	}
}
