package notifier

import (
	"strings"
	"time"

	"tradebot/internal/pkg/text"
)

// Telegram caps messages at 4096 characters; leave room for the footer.
const maxStructuredMessageLen = 3800

// MessageSection is one titled block of bullet lines.
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage is a notification with a header, sections and a footer.
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown renders m for Telegram's Markdown mode. Sections go inside
// one code block so numbers line up; blank lines and empty sections are
// dropped.
func (m StructuredMessage) RenderMarkdown() string {
	var parts []string
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		parts = append(parts, header)
	}
	if block := codeBlock(m.Sections); block != "" {
		parts = append(parts, block)
	}
	var tail []string
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		tail = append(tail, escapeFence(footer))
	}
	if !m.Timestamp.IsZero() {
		tail = append(tail, "Time: "+m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, "\n"))
	}
	return text.Truncate(strings.Join(parts, "\n\n"), maxStructuredMessageLen)
}

func codeBlock(secs []MessageSection) string {
	var blocks []string
	for _, sec := range secs {
		var lines []string
		for _, l := range sec.Lines {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, "- "+escapeFence(l))
			}
		}
		if len(lines) == 0 {
			continue
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			lines = append([]string{escapeFence(title)}, lines...)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	if len(blocks) == 0 {
		return ""
	}
	return "```\n" + strings.Join(blocks, "\n\n") + "\n```"
}

// escapeFence keeps user text from closing the code block early.
func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
