// Package parser turns free-text chat messages into structured intents.
package parser

import (
	"context"

	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/session"
)

// Action is what the user wants to do.
type Action string

const (
	ActionUnknown Action = "unknown"
	ActionSearch  Action = "search"
	ActionSelect  Action = "select"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionStatus  Action = "status"
	ActionHelp    Action = "help"
	ActionPending Action = "pending"
	// ActionAnime answers the anime/regular question; Intent.Anime holds the choice.
	ActionAnime Action = "anime"
	// ActionMonitor picks a season-monitor scope; Intent.Monitor holds the value.
	ActionMonitor Action = "monitor"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionUnknown, ActionSearch, ActionSelect, ActionConfirm, ActionCancel,
		ActionStatus, ActionHelp, ActionPending, ActionAnime, ActionMonitor:
		return true
	}
	return false
}

// Intent is the structured result of parsing one message.
type Intent struct {
	Action Action `json:"action"`
	// Query is the search term with media-type and year hints removed.
	Query string `json:"query,omitempty"`
	// MediaType narrows a search; empty searches both libraries.
	MediaType models.MediaType `json:"media_type,omitempty"`
	Year      int              `json:"year,omitempty"`
	// Index is the 1-based pick for ActionSelect.
	Index   int    `json:"index,omitempty"`
	Anime   bool   `json:"anime,omitempty"`
	Monitor string `json:"monitor,omitempty"`
}

// Context is the conversation state the parser may use to disambiguate.
type Context struct {
	State      session.State
	NumResults int
}

// Parser extracts an intent from text.
type Parser interface {
	Parse(ctx context.Context, text string, pc Context) (Intent, error)
}
