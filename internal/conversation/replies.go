package conversation

import (
	"fmt"
	"strings"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/quota"
	"github.com/zulandar/marquee/internal/session"
)

// Fixed replies.
const (
	msgUnauthorized    = "Sorry, you're not authorized to request media here. Ask the server admin to add you."
	msgGenericError    = "Sorry, something went wrong on my end. Please try again in a moment."
	msgNothingToCancel = "Nothing to cancel. Send a title to search, or \"help\"."
	msgCancelled       = "Cancelled. Send another title whenever you like."
	msgAdminOnly       = "Only admins can list pending requests."
	msgUnknown         = "I didn't catch that. Send a movie or show title to search, or \"help\" for commands."
)

const (
	overviewLimit = 200
	statusLimit   = 10
)

func helpText() string {
	return `Send me a movie or TV show title and I'll find it for you.

Examples:
  find Inception
  the movie Dune (2021)
  tv show Severance

Then reply with a number to pick a result and "yes" to add it.

Other commands:
  status: your recent requests and remaining quota
  cancel: start over
  help: this message`
}

func reprompt(sess session.Session) string {
	switch sess.State {
	case session.StateAwaitingSelection:
		return pickRange(len(sess.PendingResults))
	case session.StateAwaitingConfirmation:
		if sess.SelectedMedia != nil {
			return fmt.Sprintf("Reply \"yes\" to add %s, or \"no\" to cancel.", sess.SelectedMedia.DisplayTitle())
		}
	case session.StateAwaitingAnimeConfirmation:
		return `Reply "anime" or "regular", or "cancel" to stop.`
	case session.StateAwaitingSeasonSelection:
		return seasonMenu(sess.SelectedMedia)
	}
	return msgUnknown
}

func notConfigured(mt models.MediaType) string {
	switch mt {
	case models.MediaMovie:
		return "Movie requests aren't set up on this server."
	case models.MediaTVShow:
		return "TV show requests aren't set up on this server."
	}
	return "No media libraries are set up on this server."
}

func noResults(query string) string {
	return fmt.Sprintf("No results found for %q. Try a different title.", query)
}

func resultList(query string, results []library.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result", len(results))
	if len(results) != 1 {
		b.WriteString("s")
	}
	fmt.Fprintf(&b, " for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, r.DisplayTitle(), r.MediaType.Label())
		if r.InLibrary {
			b.WriteString(" (already in library)")
		}
		b.WriteString("\n")
	}
	b.WriteString(`Reply with a number to choose, or "cancel".`)
	return b.String()
}

func pickRange(n int) string {
	if n == 1 {
		return `Reply "1" to choose the result, or "cancel".`
	}
	return fmt.Sprintf("Please pick a number between 1 and %d, or \"cancel\".", n)
}

func alreadyInLibrary(r library.Result) string {
	return fmt.Sprintf("%s is already in the library. Enjoy!", r.DisplayTitle())
}

func confirmPrompt(r library.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", r.DisplayTitle(), r.MediaType.Label())
	if ov := strings.TrimSpace(r.Overview); ov != "" {
		if len([]rune(ov)) > overviewLimit {
			ov = string([]rune(ov)[:overviewLimit]) + "..."
		}
		b.WriteString(ov)
		b.WriteString("\n")
	}
	b.WriteString(`Add it? Reply "yes" or "no".`)
	return b.String()
}

func alreadyRequested(req *models.MediaRequest) string {
	return fmt.Sprintf("%s was already requested and is %s.", requestTitle(req), req.Status)
}

func animePrompt(r library.Result) string {
	return fmt.Sprintf("%s looks like anime. Should it go to the anime library? Reply \"anime\" or \"regular\".", r.DisplayTitle())
}

func seasonMenu(sel *library.Result) string {
	var b strings.Builder
	if sel != nil {
		fmt.Fprintf(&b, "Which seasons of %s should I monitor?\n", sel.DisplayTitle())
	} else {
		b.WriteString("Which seasons should I monitor?\n")
	}
	for i, o := range library.MonitorOptions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o.Label)
	}
	b.WriteString(`Reply with a number, or "cancel".`)
	return b.String()
}

func quotaExceeded(mt models.MediaType, p quota.Policy) string {
	return fmt.Sprintf("You've reached your %s limit (%d per %s). Your quota resets at the start of the next %s.",
		mt.Label(), p.Limit(mt), periodUnit(p.Period), periodUnit(p.Period))
}

func periodUnit(p quota.Period) string {
	switch p {
	case quota.Daily:
		return "day"
	case quota.Monthly:
		return "month"
	}
	return "week"
}

func addedText(r library.Result) string {
	return fmt.Sprintf("Added %s to the %s library. I'll let you know when it's ready.", r.DisplayTitle(), r.MediaType.Label())
}

func statusText(reqs []*models.MediaRequest, movies, tv quota.Usage, period quota.Period) string {
	var b strings.Builder
	if len(reqs) == 0 {
		b.WriteString("You haven't requested anything yet.\n")
	} else {
		b.WriteString("Your recent requests:\n")
		// Newest first.
		for i, shown := len(reqs)-1, 0; i >= 0 && shown < statusLimit; i, shown = i-1, shown+1 {
			fmt.Fprintf(&b, "- %s: %s\n", requestTitle(reqs[i]), reqs[i].Status)
		}
	}
	fmt.Fprintf(&b, "Quota this %s: movies %s, TV shows %s", periodUnit(period), usageText(movies), usageText(tv))
	return b.String()
}

func usageText(u quota.Usage) string {
	if u.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%d", u.Used, u.Limit)
}

func pendingText(reqs []*models.MediaRequest) string {
	if len(reqs) == 0 {
		return "No pending requests."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending request", len(reqs))
	if len(reqs) != 1 {
		b.WriteString("s")
	}
	b.WriteString(":\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "- %s [%s] %s, by %s\n", requestTitle(r), r.MediaType.Label(), r.Status, r.RequestedBy)
	}
	return b.String()
}

func requestTitle(r *models.MediaRequest) string {
	if r.Year != nil {
		return fmt.Sprintf("%s (%d)", r.Title, *r.Year)
	}
	return r.Title
}
