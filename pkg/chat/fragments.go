package chat

import "strings"

// NoTruncationLimit is the sentinel limit value that disables fragment
// truncation entirely. It is a fixed design choice, not a computed
// threshold.
const NoTruncationLimit = 128

// Limits are per-fragment character budgets in thousands of characters.
type Limits struct {
	Web    int
	Page   int
	Scrape int
}

// Fragments are the context pieces contributed by configuration and the
// pre-processing pipeline for a single send. They are not persisted beyond
// the send.
type Fragments struct {
	Persona string
	Profile string
	Note    string
	Page    string
	Web     string
	Scraped string
}

// TruncateFragment cuts s to limit*1000 characters. The NoTruncationLimit
// sentinel and non-positive limits leave s untouched.
func TruncateFragment(s string, limit int) string {
	if limit <= 0 || limit == NoTruncationLimit {
		return s
	}
	runes := []rune(s)
	max := limit * 1000
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Join assembles the system prompt. The order is fixed and significant:
// persona, user profile, note, page context, web context, scraped-URL
// context. Earlier fragments get higher model attention priority.
func (f Fragments) Join(l Limits) string {
	var parts []string
	add := func(label, s string) {
		if s == "" {
			return
		}
		if label != "" {
			parts = append(parts, label+"\n"+s)
			return
		}
		parts = append(parts, s)
	}
	add("", f.Persona)
	add("User profile:", f.Profile)
	add("Note:", f.Note)
	add("Page content:", TruncateFragment(f.Page, l.Page))
	add("Web search results:", TruncateFragment(f.Web, l.Web))
	add("Content from URLs in the message:", TruncateFragment(f.Scraped, l.Scrape))
	return strings.Join(parts, "\n\n")
}
