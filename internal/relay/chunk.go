package relay

import (
	"strings"

	"github.com/zulandar/marquee/internal/identity"
)

// Per-platform message length limits, in bytes.
var messageLimits = map[identity.Platform]int{
	identity.SMS:      1600,
	identity.Discord:  2000,
	identity.Slack:    4000,
	identity.Telegram: 4096,
}

// MessageLimit returns the maximum message length for p.
func MessageLimit(p identity.Platform) int {
	if n, ok := messageLimits[p]; ok {
		return n
	}
	return 2000
}

// chunkMessage splits text into pieces of at most limit bytes, preferring
// line breaks, then spaces. Empty text yields no chunks.
func chunkMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], " ")
		}
		if cut <= 0 {
			cut = limit
			// Don't split a multi-byte rune.
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
