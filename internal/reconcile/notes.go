package reconcile

import (
	"strings"

	"github.com/locvowork/task_reconciler/internal/domain"
)

// SubtaskMarker opens the sub-task summary appended to pushed notes.
const SubtaskMarker = "--- subtasks ---"

// RenderNotes builds the remote notes of a top-level task. With summary on,
// one checkbox line per sub-task follows the marker.
func RenderNotes(description string, subtasks []domain.Subtask, summary bool) string {
	desc := strings.TrimSpace(description)
	if !summary || len(subtasks) == 0 {
		return desc
	}
	var b strings.Builder
	if desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	b.WriteString(SubtaskMarker)
	for _, s := range subtasks {
		if s.Completed {
			b.WriteString("\n[x] ")
		} else {
			b.WriteString("\n[ ] ")
		}
		b.WriteString(s.Title)
	}
	return b.String()
}

// DescriptionFromNotes drops the sub-task summary, if any, and trims the rest.
func DescriptionFromNotes(notes string) string {
	if strings.HasPrefix(notes, SubtaskMarker) {
		return ""
	}
	if i := strings.Index(notes, "\n"+SubtaskMarker); i >= 0 {
		notes = notes[:i]
	}
	return strings.TrimSpace(notes)
}
