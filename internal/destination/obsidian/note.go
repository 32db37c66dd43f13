package obsidian

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/destination"
	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const (
	frontmatterDelim = "---\n"
	memoCountKey     = "memo_count"
	noteType         = "voice-memo-transcript"
	noteTag          = "voice-memo"
)

// frontmatterFields are the values written when a note is created.
type frontmatterFields struct {
	Date time.Time
	Week string
	Tags bool
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// buildFrontmatter renders the YAML block for a new note, delimiters included.
func buildFrontmatter(f frontmatterFields) (string, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		m.Content = append(m.Content, scalar("!!str", key), value)
	}

	add("date", scalar("!!timestamp", f.Date.Format(time.DateOnly)))
	add("type", scalar("!!str", noteType))
	if f.Tags {
		add("tags", &yaml.Node{
			Kind:    yaml.SequenceNode,
			Style:   yaml.FlowStyle,
			Content: []*yaml.Node{scalar("!!str", noteTag)},
		})
	}
	if f.Week != "" {
		add("week", scalar("!!str", f.Week))
	}
	add(memoCountKey, scalar("!!int", "0"))

	body, err := encodeYAML(m)
	if err != nil {
		return "", err
	}
	return frontmatterDelim + body + frontmatterDelim + "\n", nil
}

func encodeYAML(n *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return "", goerr.Wrap(err, "failed to encode frontmatter")
	}
	if err := enc.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to encode frontmatter")
	}
	return buf.String(), nil
}

// memoCountLine matches the counter line inside a frontmatter block. The
// digits are the only bytes ever rewritten.
var memoCountLine = regexp.MustCompile(`(?m)^memo_count:[ \t]*(\d+)[ \t]*\r?$`)

// frontmatterBounds returns the byte range of the YAML between the opening
// and closing "---" lines. Both LF and CRLF line endings are accepted. ok is
// false when the note does not start with a closed block.
func frontmatterBounds(content string) (start, end int, ok bool) {
	switch {
	case strings.HasPrefix(content, "---\n"):
		start = len("---\n")
	case strings.HasPrefix(content, "---\r\n"):
		start = len("---\r\n")
	default:
		return 0, 0, false
	}

	for pos := start; pos < len(content); {
		next := strings.IndexByte(content[pos:], '\n')
		line := content[pos:]
		if next >= 0 {
			line = content[pos : pos+next]
		}
		if strings.TrimSuffix(line, "\r") == "---" {
			return start, pos, true
		}
		if next < 0 {
			break
		}
		pos += next + 1
	}
	return 0, 0, false
}

// incrementMemoCount adds one to the memo_count line of the leading
// frontmatter. Every other byte of the note is kept as is. A note without
// frontmatter, or whose frontmatter has no memo_count line, is returned
// unchanged.
func incrementMemoCount(content string) string {
	start, end, ok := frontmatterBounds(content)
	if !ok {
		return content
	}

	loc := memoCountLine.FindStringSubmatchIndex(content[start:end])
	if loc == nil {
		return content
	}
	digitsFrom, digitsTo := start+loc[2], start+loc[3]
	n, err := strconv.Atoi(content[digitsFrom:digitsTo])
	if err != nil {
		return content
	}
	return content[:digitsFrom] + strconv.Itoa(n+1) + content[digitsTo:]
}

// formatEntry renders one transcript section.
func formatEntry(e destination.Entry, withMetadata bool) string {
	title := e.Name
	if withMetadata && e.Metadata.Title != "" {
		title = e.Metadata.Title
	}
	title = strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(title)

	var sb strings.Builder
	sb.WriteString("---\n\n")
	sb.WriteString("## " + title + "\n\n")
	sb.WriteString("**Recorded:** " + e.Recorded + "\n")
	if withMetadata {
		if e.Metadata.Duration > 0 {
			sb.WriteString("**Duration:** " + metadata.FormatDuration(e.Metadata.Duration) + "\n")
		}
		if e.Metadata.Device != "" {
			sb.WriteString("**Device:** " + e.Metadata.Device + "\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(e.Text)
	sb.WriteString("\n\n")
	return sb.String()
}
