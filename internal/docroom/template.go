package docroom

import (
	"strings"

	"ideaflow/cli/internal/records"
)

// RenderTemplate produces the canonical starting document for a room that
// has never been populated, from the idea's persisted fields.
func RenderTemplate(idea records.Idea) string {
	title := strings.TrimSpace(idea.Title)
	if title == "" {
		title = "Untitled Idea"
	}
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	b.WriteString("## Summary\n\n")
	if s := strings.TrimSpace(idea.Summary); s != "" {
		b.WriteString(s + "\n\n")
	}
	if len(idea.Tags) > 0 {
		b.WriteString("Tags: " + strings.Join(idea.Tags, ", ") + "\n\n")
	}
	b.WriteString("## Notes\n")
	return b.String()
}
