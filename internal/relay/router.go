package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/marquee/internal/identity"
	"golang.org/x/sync/errgroup"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight turns.
const DefaultDrainTimeout = 10 * time.Second

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	DrainTimeout time.Duration
	Out          io.Writer // defaults to os.Stdout
}

// Router holds one adapter per platform and a single conversation handler.
type Router struct {
	mu       sync.RWMutex
	adapters map[identity.Platform]Adapter
	handler  Handler
	out      io.Writer
	drain    time.Duration

	turnMu   sync.Mutex
	draining bool
	inflight sync.WaitGroup
	tails    map[identity.ID]chan struct{}

	runMu   sync.Mutex
	cancel  context.CancelFunc
	pumps   sync.WaitGroup
	running []Adapter
}

// NewRouter creates a Router with no adapters and no handler.
func NewRouter(opts RouterOpts) *Router {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	return &Router{
		adapters: make(map[identity.Platform]Adapter),
		out:      out,
		drain:    drain,
		tails:    make(map[identity.ID]chan struct{}),
	}
}

// RegisterAdapter associates a with its platform. Re-registering a platform
// replaces the previous adapter.
func (r *Router) RegisterAdapter(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Platform()]; exists {
		log.Printf("relay: replacing %s adapter", a.Platform())
	}
	r.adapters[a.Platform()] = a
}

// Adapter returns the adapter registered for p.
func (r *Router) Adapter(p identity.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// SetHandler installs the conversation handler.
func (r *Router) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Dispatch runs one turn through the handler. With no handler, or once Stop
// has begun draining, it returns UnavailableResponse.
func (r *Router) Dispatch(ctx context.Context, userID identity.ID, text string) Response {
	if !r.beginTurn() {
		return UnavailableResponse
	}
	defer r.inflight.Done()
	return r.dispatch(ctx, userID, text)
}

// beginTurn registers an in-flight turn unless Stop has begun draining.
func (r *Router) beginTurn() bool {
	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	if r.draining {
		return false
	}
	r.inflight.Add(1)
	return true
}

func (r *Router) dispatch(ctx context.Context, userID identity.ID, text string) Response {
	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()
	if h == nil {
		return UnavailableResponse
	}
	return h.Handle(ctx, userID, text)
}

// CanPush reports whether the platform's adapter is enabled and can send
// messages without an inbound context.
func (r *Router) CanPush(p identity.Platform) bool {
	a, ok := r.Adapter(p)
	if !ok || !a.Enabled() {
		return false
	}
	_, ok = a.(Pusher)
	return ok
}

// Deliver pushes resp to userID. Every failure is logged and dropped; the
// result only reports whether the adapter accepted the message.
func (r *Router) Deliver(ctx context.Context, userID identity.ID, resp Response) bool {
	parts, err := identity.Parse(userID.String())
	if err != nil {
		log.Printf("relay: deliver: dropping message: %v", err)
		return false
	}
	a, ok := r.Adapter(parts.Platform)
	if !ok {
		log.Printf("relay: deliver: no %s adapter; dropping message for %s", parts.Platform, userID)
		return false
	}
	if !a.Enabled() {
		log.Printf("relay: deliver: %s adapter disabled; dropping message for %s", parts.Platform, userID)
		return false
	}
	p, ok := a.(Pusher)
	if !ok {
		log.Printf("relay: deliver: %s adapter cannot push; dropping message for %s", parts.Platform, userID)
		return false
	}
	if err := p.Push(ctx, parts.RawID, resp); err != nil {
		log.Printf("relay: deliver: push to %s: %v", userID, err)
		return false
	}
	return true
}

// Start connects every enabled adapter concurrently. A failing adapter is
// logged and skipped. Once all have settled, inbound pumps run until Stop.
func (r *Router) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("relay: already started")
	}

	r.mu.RLock()
	var enabled []Adapter
	for _, p := range identity.Platforms {
		if a, ok := r.adapters[p]; ok && a.Enabled() {
			enabled = append(enabled, a)
		}
	}
	r.mu.RUnlock()

	pumpCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	type live struct {
		adapter Adapter
		inbound <-chan InboundMessage
	}
	results := make([]*live, len(enabled))

	var g errgroup.Group
	for i, a := range enabled {
		g.Go(func() error {
			if err := a.Connect(pumpCtx); err != nil {
				log.Printf("relay: start %s: %v", a.Platform(), err)
				return nil
			}
			ch, err := a.Listen(pumpCtx)
			if err != nil {
				log.Printf("relay: listen %s: %v", a.Platform(), err)
				if cerr := a.Close(); cerr != nil {
					log.Printf("relay: close %s: %v", a.Platform(), cerr)
				}
				return nil
			}
			results[i] = &live{adapter: a, inbound: ch}
			return nil
		})
	}
	g.Wait()

	for _, l := range results {
		if l == nil {
			continue
		}
		r.running = append(r.running, l.adapter)
		fmt.Fprintf(r.out, "relay: %s online\n", l.adapter.Platform())
		r.pumps.Add(1)
		go r.pump(pumpCtx, l.adapter, l.inbound)
	}
	fmt.Fprintf(r.out, "relay: %d of %d enabled adapters online\n", len(r.running), len(enabled))
	return nil
}

// pump reads inbound messages from one adapter until the channel closes or
// ctx is cancelled.
func (r *Router) pump(ctx context.Context, a Adapter, inbound <-chan InboundMessage) {
	defer r.pumps.Done()
	var botUserID string
	if bui, ok := a.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(r.out, "relay: %s inbound channel closed\n", a.Platform())
				return
			}
			if botUserID != "" && msg.UserID == botUserID {
				continue
			}
			r.enqueue(ctx, a, msg)
		}
	}
}

// enqueue runs the turn for msg in its own goroutine. Turns for the same
// user run in arrival order; different users run concurrently.
func (r *Router) enqueue(ctx context.Context, a Adapter, msg InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	userID, err := identity.Build(a.Platform(), msg.UserID)
	if err != nil {
		log.Printf("relay: %s: dropping message from %q: malformed user id", a.Platform(), msg.UserID)
		return
	}

	if !r.beginTurn() {
		log.Printf("relay: %s: dropping message from %s: shutting down", a.Platform(), userID)
		return
	}
	r.turnMu.Lock()
	prev := r.tails[userID]
	done := make(chan struct{})
	r.tails[userID] = done
	r.turnMu.Unlock()

	// Turns outlive the pump context so Stop can drain them.
	turnCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			r.inflight.Done()
			close(done)
			r.turnMu.Lock()
			if r.tails[userID] == done {
				delete(r.tails, userID)
			}
			r.turnMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		fmt.Fprintf(r.out, "relay: recv [%s ch=%s] %q\n", userID, msg.ChannelID, truncate(text, 80))
		resp := r.dispatch(turnCtx, userID, text)
		r.reply(turnCtx, a, msg, resp)
	}()
}

// reply sends resp back into the originating channel, chunked to the
// platform's message limit. Media URLs ride on the first chunk.
func (r *Router) reply(ctx context.Context, a Adapter, in InboundMessage, resp Response) {
	chunks := chunkMessage(resp.Text, MessageLimit(a.Platform()))
	if len(chunks) == 0 && len(resp.MediaURLs) > 0 {
		chunks = []string{""}
	}
	for i, chunk := range chunks {
		out := OutboundMessage{
			ChannelID: in.ChannelID,
			ThreadID:  in.ThreadID,
			UserID:    in.UserID,
			Text:      chunk,
		}
		if i == 0 {
			out.MediaURLs = resp.MediaURLs
		}
		if err := a.Send(ctx, out); err != nil {
			log.Printf("relay: reply via %s to %s: %v", a.Platform(), in.UserID, err)
			return
		}
	}
}

// Stop stops the inbound pumps, waits up to the drain timeout for in-flight
// turns, then closes every started adapter concurrently.
func (r *Router) Stop(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.turnMu.Lock()
	r.draining = true
	r.turnMu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.pumps.Wait()

	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()
	timer := time.NewTimer(r.drain)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		log.Printf("relay: stop: in-flight turns still running after %v; closing adapters", r.drain)
	case <-ctx.Done():
		log.Printf("relay: stop: %v; closing adapters", ctx.Err())
	}

	var g errgroup.Group
	for _, a := range r.running {
		g.Go(func() error {
			if err := a.Close(); err != nil {
				log.Printf("relay: close %s: %v", a.Platform(), err)
			}
			return nil
		})
	}
	g.Wait()
	r.running = nil
	r.cancel = nil
	fmt.Fprintf(r.out, "relay: stopped\n")
	return nil
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
