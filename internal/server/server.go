// Package server is Marquee's HTTP surface: library-manager webhooks, the
// SMS provider callback and a JSON message endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/relay"
	"github.com/zulandar/marquee/internal/tracker"
)

// DefaultPort is used when no port is configured.
const DefaultPort = 8080

const shutdownTimeout = 5 * time.Second

// Dispatcher runs one conversation turn.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID identity.ID, text string) relay.Response
}

// EventHandler applies library-manager webhook events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev tracker.Event) (bool, error)
}

// SecretVerifier checks the shared webhook secret.
type SecretVerifier interface {
	VerifyWebhookSecret(provided string) bool
}

// Opts configures the HTTP server.
type Opts struct {
	Port       int
	Dispatcher Dispatcher
	Events     EventHandler
	Secret     SecretVerifier
	// SMSInbound is mounted at /sms/inbound when set.
	SMSInbound gin.HandlerFunc
	// APIToken guards /api/messages with a bearer token when set.
	APIToken string
	// Status adds fields to the /healthz body.
	Status func() map[string]any
	Out    io.Writer
}

// NewEngine builds the gin engine with every route registered.
func NewEngine(opts Opts) (*gin.Engine, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("server: dispatcher is required")
	}
	if opts.Events == nil {
		return nil, errors.New("server: events is required")
	}
	if opts.Secret == nil {
		return nil, errors.New("server: secret verifier is required")
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}

// Start runs the HTTP server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts Opts) error {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewEngine(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "HTTP server listening on :%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
