package catalog

import (
	"github.com/tillerhq/tiller/internal/keywords"
	"github.com/tillerhq/tiller/pkg/models"
)

// builtinTools is the startup tool set. The sync endpoint can extend or
// replace entries at runtime.
var builtinTools = []models.ToolDescriptor{
	{
		Name:        "note_search",
		Description: "Full-text and semantic search across the user's notes and documents",
		Pack:        models.PackNotes,
		Keywords:    []string{"note", "notes", "search", "find", "document"},
	},
	{
		Name:        "note_create",
		Description: "Create a new note or document from provided content",
		Pack:        models.PackNotes,
		Keywords:    []string{"note", "create", "capture", "write"},
	},
	{
		Name:        "note_update",
		Description: "Apply an edit to an existing note or document",
		Pack:        models.PackNotes,
		Keywords:    []string{"note", "edit", "update", "modify"},
	},
	{
		Name:        "org_capture",
		Description: "Capture a quick entry into the user's org-mode inbox",
		Pack:        models.PackNotes,
		Keywords:    []string{"org-mode", "capture", "inbox", "todo"},
	},
	{
		Name:        "web_search",
		Description: "Search the web and return ranked result snippets",
		Pack:        models.PackWeb,
		Keywords:    []string{"search", "web", "look up", "google"},
	},
	{
		Name:        "web_fetch",
		Description: "Fetch and extract readable content from a URL",
		Pack:        models.PackWeb,
		Keywords:    []string{"url", "fetch", "page", "crawl"},
	},
	{
		Name:        "news_digest",
		Description: "Synthesize a digest of recent news on a topic from multiple sources",
		Pack:        models.PackWeb,
		Keywords:    []string{"news", "headlines", "digest", "current events"},
	},
	{
		Name:        "email_search",
		Description: "Search the user's email by sender, subject, or content",
		Pack:        models.PackComms,
		Keywords:    []string{"email", "inbox", "mail", "search"},
	},
	{
		Name:        "email_send",
		Description: "Compose and send an email on the user's behalf",
		Pack:        models.PackComms,
		Keywords:    []string{"email", "send", "compose", "mail"},
	},
	{
		Name:        "team_message",
		Description: "Post a message to a team channel or direct conversation",
		Pack:        models.PackComms,
		Keywords:    []string{"team", "message", "channel", "post"},
	},
	{
		Name:        "audio_transcribe",
		Description: "Transcribe an audio recording or voice memo to text",
		Pack:        models.PackMedia,
		Keywords:    []string{"audio", "transcribe", "recording", "voice"},
	},
	{
		Name:        "task_create",
		Description: "Create a task or reminder with an optional deadline",
		Pack:        models.PackSystem,
		Keywords:    []string{"task", "todo", "reminder", "deadline"},
	},
	{
		Name:        "calendar_lookup",
		Description: "Look up events on the user's calendar for a date range",
		Pack:        models.PackSystem,
		Keywords:    []string{"calendar", "schedule", "meeting", "agenda"},
	},
	{
		Name:        "context_recall",
		Description: "Recall shared context produced by earlier agent turns in this conversation",
		Pack:        models.PackSystem,
		Keywords:    []string{"context", "recall", "earlier", "previous"},
	},
}

// coreTools is each agent's fixed core set, always included in a
// provisioning plan regardless of query content.
var coreTools = map[models.AgentKind][]string{
	models.AgentChat:     {"context_recall"},
	models.AgentNotes:    {"note_search", "note_create", "context_recall"},
	models.AgentResearch: {"web_search", "web_fetch", "context_recall"},
	models.AgentEditor:   {"note_search", "note_update", "context_recall"},
}

// categoryTools maps keyword categories to the conditional tools they pull
// into a plan.
var categoryTools = map[keywords.Category][]string{
	keywords.CategoryNotes:    {"note_search", "note_create", "org_capture"},
	keywords.CategoryWeb:      {"web_search", "web_fetch"},
	keywords.CategoryEmail:    {"email_search", "email_send"},
	keywords.CategoryAudio:    {"audio_transcribe"},
	keywords.CategoryNews:     {"news_digest", "web_search"},
	keywords.CategoryTasks:    {"task_create", "org_capture"},
	keywords.CategoryCalendar: {"calendar_lookup"},
}
