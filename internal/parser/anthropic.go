package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultTimeout bounds one parse call.
	DefaultTimeout = 10 * time.Second

	maxTokens = 256
)

// MessagesClient is the subset of the Anthropic client we use.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// realMessagesClient wraps the SDK's message service.
type realMessagesClient struct {
	messages *anthropic.MessageService
}

func (r *realMessagesClient) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return r.messages.New(ctx, params)
}

// AnthropicOpts configures an Anthropic parser.
type AnthropicOpts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// Client overrides the SDK client; used by tests.
	Client MessagesClient
	// Fallback handles text when the model call or its output fails.
	// Defaults to Rules.
	Fallback Parser
}

// Anthropic asks a Claude model for a JSON intent and falls back to another
// parser when the call or the reply is unusable.
type Anthropic struct {
	client   MessagesClient
	model    string
	timeout  time.Duration
	fallback Parser
}

// NewAnthropic creates an Anthropic parser.
func NewAnthropic(opts AnthropicOpts) (*Anthropic, error) {
	client := opts.Client
	if client == nil {
		if opts.APIKey == "" {
			return nil, errors.New("parser: anthropic api key is required")
		}
		c := anthropic.NewClient(option.WithAPIKey(opts.APIKey))
		client = &realMessagesClient{messages: &c.Messages}
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = Rules{}
	}
	return &Anthropic{client: client, model: model, timeout: timeout, fallback: fallback}, nil
}

// Parse asks the model for an intent. Any failure falls back and is logged.
func (a *Anthropic) Parse(ctx context.Context, text string, pc Context) (Intent, error) {
	in, err := a.ask(ctx, text, pc)
	if err != nil {
		log.Printf("parser: anthropic: %v; falling back to rules", err)
		return a.fallback.Parse(ctx, text, pc)
	}
	return in, nil
}

func (a *Anthropic) ask(ctx context.Context, text string, pc Context) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Conversation state: %s\nResults shown: %d\nMessage: %s", pc.State, pc.NumResults, text)
	resp, err := a.client.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Intent{}, fmt.Errorf("messages: %w", err)
	}
	return decodeIntent(responseText(resp))
}

func responseText(resp *anthropic.Message) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// decodeIntent pulls the first JSON object out of text and validates it.
func decodeIntent(text string) (Intent, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return Intent{}, errors.New("no json object in reply")
	}
	var in Intent
	if err := json.Unmarshal([]byte(text[start:end+1]), &in); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if !in.Action.Valid() {
		return Intent{}, fmt.Errorf("unknown action %q", in.Action)
	}
	if in.MediaType != "" && !in.MediaType.Valid() {
		in.MediaType = ""
	}
	in.Query = strings.TrimSpace(in.Query)
	switch in.Action {
	case ActionSearch:
		if in.Query == "" {
			return Intent{}, errors.New("search intent without query")
		}
	case ActionSelect:
		if in.Index < 1 {
			return Intent{}, fmt.Errorf("select intent with index %d", in.Index)
		}
	case ActionMonitor:
		if !validMonitor(in.Monitor) {
			return Intent{}, fmt.Errorf("unknown monitor option %q", in.Monitor)
		}
	}
	return in, nil
}

func validMonitor(v string) bool {
	for _, o := range library.MonitorOptions {
		if o.Value == v {
			return true
		}
	}
	return false
}

func systemPrompt() string {
	var monitors []string
	for _, o := range library.MonitorOptions {
		monitors = append(monitors, o.Value)
	}
	return `You classify chat messages sent to a movie and TV request bot.
Reply with a single JSON object and nothing else:
{"action": "...", "query": "...", "media_type": "...", "year": 0, "index": 0, "anime": false, "monitor": "..."}

action is one of: search, select, confirm, cancel, status, help, pending, anime, monitor, unknown.
- search: the user names a title to find. Put the bare title in query. Set media_type to "` + string(models.MediaMovie) + `" or "` + string(models.MediaTVShow) + `" only when the user says so, and year only when given.
- select: the user picks one of the shown results; index is 1-based. Only valid in awaiting_selection.
- confirm: the user agrees to add the selected item. Only valid in awaiting_confirmation.
- anime: answer to "is this anime?" in awaiting_anime_confirmation; set anime true or false.
- monitor: season choice in awaiting_season_selection; monitor is one of: ` + strings.Join(monitors, ", ") + `.
- cancel: the user declines or wants to stop.
- status: the user asks about their requests or quota.
- pending: an admin asks for all pending requests.
- help: the user asks what the bot can do.`
}
