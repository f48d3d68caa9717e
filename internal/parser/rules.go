package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/session"
)

var (
	searchPrefixRe = regexp.MustCompile(`^(?:please\s+)?(?:can you\s+|could you\s+)?(?:find|search(?: for)?|look ?up|add|request|get|download|i want(?: to watch)?|i'd like(?: to watch)?)\s+(.+)$`)
	yearRe         = regexp.MustCompile(`\s*(?:\(|\b(?:from|in)\s+)((?:19|20)\d{2})\)?\s*$`)
	pickRe         = regexp.MustCompile(`^(?:#|no\.?\s*|number\s+|option\s+)?(\d{1,2})$`)
	movieHintRe    = regexp.MustCompile(`^(?:the\s+)?(?:movie|film)\s+|\s+(?:the\s+)?(?:movie|film)$`)
	tvHintRe       = regexp.MustCompile(`^(?:the\s+)?(?:tv\s+show|tv\s+series|series|tv)\s+|\s+(?:the\s+)?(?:tv\s+show|tv\s+series|series)$`)
)

var ordinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"the first": 1, "the second": 2, "the third": 3, "the fourth": 4, "the fifth": 5,
	"the first one": 1, "the second one": 2, "the third one": 3,
}

var (
	yesWords    = set("yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "add it", "do it", "please", "yes please")
	noWords     = set("no", "n", "nope", "nah", "no thanks")
	cancelWords = set("cancel", "stop", "nevermind", "never mind", "quit", "abort", "reset", "start over")
	helpWords   = set("help", "?", "commands", "menu", "what can you do", "start")
	statusWords = set("status", "my requests", "requests", "quota", "what did i request")
)

// monitorKeywords maps words to season-monitor values.
var monitorKeywords = map[string]string{
	"all": "all", "all seasons": "all", "everything": "all",
	"future": "future", "future episodes": "future", "new": "future",
	"first": "firstSeason", "first season": "firstSeason",
	"latest": "latestSeason", "latest season": "latestSeason", "last season": "latestSeason",
	"missing": "missing", "missing episodes": "missing",
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Rules is a keyword and pattern parser. It uses the session state to read
// bare numbers and yes/no answers.
type Rules struct{}

// Parse never fails.
func (Rules) Parse(ctx context.Context, text string, pc Context) (Intent, error) {
	return parseRules(text, pc), nil
}

func parseRules(text string, pc Context) Intent {
	norm := normalize(text)
	if norm == "" {
		return Intent{Action: ActionUnknown}
	}

	switch {
	case cancelWords[norm]:
		return Intent{Action: ActionCancel}
	case helpWords[norm]:
		return Intent{Action: ActionHelp}
	case statusWords[norm]:
		return Intent{Action: ActionStatus}
	case norm == "pending":
		return Intent{Action: ActionPending}
	}

	switch pc.State {
	case session.StateAwaitingSelection:
		if n, ok := pick(norm); ok {
			return Intent{Action: ActionSelect, Index: n}
		}
		if noWords[norm] {
			return Intent{Action: ActionCancel}
		}
	case session.StateAwaitingConfirmation:
		if yesWords[norm] {
			return Intent{Action: ActionConfirm}
		}
		if noWords[norm] {
			return Intent{Action: ActionCancel}
		}
	case session.StateAwaitingAnimeConfirmation:
		switch norm {
		case "anime", "yes", "y", "yeah", "yep":
			return Intent{Action: ActionAnime, Anime: true}
		case "regular", "normal", "tv", "no", "n", "nope", "not anime":
			return Intent{Action: ActionAnime, Anime: false}
		}
	case session.StateAwaitingSeasonSelection:
		if v, ok := monitorKeywords[norm]; ok {
			return Intent{Action: ActionMonitor, Monitor: v}
		}
		if n, ok := pick(norm); ok && n <= len(library.MonitorOptions) {
			return Intent{Action: ActionMonitor, Monitor: library.MonitorOptions[n-1].Value}
		}
	}

	if m := searchPrefixRe.FindStringSubmatch(norm); m != nil {
		return searchIntent(m[1])
	}
	// A bare number outside a menu means nothing.
	if _, ok := pick(norm); ok {
		return Intent{Action: ActionUnknown}
	}
	if yesWords[norm] || noWords[norm] {
		return Intent{Action: ActionUnknown}
	}
	return searchIntent(norm)
}

// searchIntent extracts media-type and year hints from q.
func searchIntent(q string) Intent {
	in := Intent{Action: ActionSearch}
	if movieHintRe.MatchString(q) {
		in.MediaType = models.MediaMovie
		q = movieHintRe.ReplaceAllString(q, "")
	} else if tvHintRe.MatchString(q) {
		in.MediaType = models.MediaTVShow
		q = tvHintRe.ReplaceAllString(q, "")
	}
	if m := yearRe.FindStringSubmatchIndex(q); m != nil && m[0] > 0 {
		in.Year, _ = strconv.Atoi(q[m[2]:m[3]])
		q = q[:m[0]]
	}
	in.Query = strings.TrimSpace(q)
	if in.Query == "" {
		return Intent{Action: ActionUnknown}
	}
	return in
}

func pick(norm string) (int, bool) {
	if m := pickRe.FindStringSubmatch(norm); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil && n > 0
	}
	if n, ok := ordinals[norm]; ok {
		return n, true
	}
	return 0, false
}

// normalize lowercases, collapses whitespace and trims trailing punctuation.
func normalize(text string) string {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	return strings.TrimRight(s, ".!,")
}
