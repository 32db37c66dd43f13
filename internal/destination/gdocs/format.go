package gdocs

import (
	"strings"

	"github.com/TechnicallyShaun/nota-memos/internal/destination"
)

var separator = strings.Repeat("─", 50)

// FormatEntry renders one transcript block.
func FormatEntry(e destination.Entry) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(separator)
	sb.WriteString("\n📝 ")
	sb.WriteString(e.Name)
	sb.WriteString("\n🕐 ")
	sb.WriteString(e.Recorded)
	sb.WriteString("\n")
	sb.WriteString(separator)
	sb.WriteString("\n\n")
	sb.WriteString(e.Text)
	sb.WriteString("\n\n")
	return sb.String()
}

// TabHeader is written at the top of a newly created tab.
func TabHeader(title string) string {
	return "📅 " + title + "\n\nVoice Memo Transcripts\n\n"
}
