package server

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/tracker"
)

// SecretHeader carries the shared webhook secret. The "secret" query
// parameter is accepted for managers that cannot set headers.
const SecretHeader = "X-Webhook-Secret"

func registerRoutes(router *gin.Engine, opts Opts) {
	router.GET("/healthz", handleHealth(opts.Status))

	hooks := router.Group("/webhooks", requireSecret(opts.Secret))
	hooks.POST("/radarr", handleRadarr(opts.Events))
	hooks.POST("/sonarr", handleSonarr(opts.Events))

	// Providers that cannot set headers pass the secret in the callback URL.
	if opts.SMSInbound != nil {
		router.POST("/sms/inbound", requireSecret(opts.Secret), opts.SMSInbound)
	}

	router.POST("/api/messages", requireToken(opts.APIToken), handleMessage(opts.Dispatcher))
}

func handleHealth(status func() map[string]any) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if status != nil {
			for k, v := range status() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

func requireSecret(v SecretVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(SecretHeader)
		if provided == "" {
			provided = c.Query("secret")
		}
		if !v.VerifyWebhookSecret(provided) {
			log.Printf("server: rejected webhook %s from %s: bad secret", c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// arrItem is the part of a Radarr movie or Sonarr series payload we read.
type arrItem struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	TmdbID int    `json:"tmdbId"`
}

type radarrPayload struct {
	EventType string  `json:"eventType"`
	Movie     arrItem `json:"movie"`
}

type sonarrPayload struct {
	EventType string  `json:"eventType"`
	Series    arrItem `json:"series"`
}

func handleRadarr(events EventHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p radarrPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		applyEvent(c, events, tracker.Event{
			System:     models.SystemRadarr,
			Type:       p.EventType,
			ExternalID: p.Movie.ID,
			TmdbID:     p.Movie.TmdbID,
			Title:      p.Movie.Title,
		})
	}
}

func handleSonarr(events EventHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p sonarrPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		applyEvent(c, events, tracker.Event{
			System:     models.SystemSonarr,
			Type:       p.EventType,
			ExternalID: p.Series.ID,
			TmdbID:     p.Series.TmdbID,
			Title:      p.Series.Title,
		})
	}
}

func applyEvent(c *gin.Context, events EventHandler, ev tracker.Event) {
	if ev.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventType is required"})
		return
	}
	updated, err := events.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		log.Printf("server: %s %s webhook: %v", ev.System, ev.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not applied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type messageRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text"`
}

func handleMessage(d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and text are required"})
			return
		}
		if _, err := identity.Parse(req.UserID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp := d.Dispatch(c.Request.Context(), identity.ID(req.UserID), req.Text)
		c.JSON(http.StatusOK, resp)
	}
}
