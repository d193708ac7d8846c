// Package keywords implements the cheap first-pass guess of needed tool
// categories: a static substring table, no I/O, no model calls. It runs
// before any vector lookup and never fails.
package keywords

import (
	"sort"
	"strings"
)

// Category is a coarse grouping of tool needs detected from query text.
type Category string

const (
	CategoryNotes    Category = "notes"
	CategoryWeb      Category = "web"
	CategoryEmail    Category = "email"
	CategoryAudio    Category = "audio"
	CategoryNews     Category = "news"
	CategoryTasks    Category = "tasks"
	CategoryCalendar Category = "calendar"
)

// table maps each category to the substrings that trigger it. Matching is
// case-insensitive substring membership.
var table = map[Category][]string{
	CategoryNotes:    {"note", "notes", "document", "write down", "capture", "org-mode", "journal"},
	CategoryWeb:      {"search", "look up", "lookup", "browse", "website", "url", "crawl", "google"},
	CategoryEmail:    {"email", "e-mail", "inbox", "send a message", "mail"},
	CategoryAudio:    {"audio", "transcribe", "transcription", "recording", "voice memo"},
	CategoryNews:     {"news", "headline", "headlines", "what happened", "current events"},
	CategoryTasks:    {"todo", "to-do", "task", "remind", "reminder", "deadline"},
	CategoryCalendar: {"calendar", "schedule", "meeting", "appointment", "agenda"},
}

// DetectCategories returns the categories whose keywords appear in the
// query, in stable (sorted) order. Pure and synchronous.
func DetectCategories(query string) []Category {
	q := strings.ToLower(query)
	var out []Category
	for cat, kws := range table {
		for _, kw := range kws {
			if strings.Contains(q, kw) {
				out = append(out, cat)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
