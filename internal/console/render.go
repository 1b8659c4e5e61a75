package console

import (
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
)

// markdownPad is the left padding applied to rendered blocks.
const markdownPad = 6

// renderMarkdown renders markdown for the terminal.
func renderMarkdown(text string, width int) string {
	return string(markdown.Render(text, width, markdownPad))
}

// rendersRicher reports whether terminal rendering would change the reading
// experience. Fenced code, tables, and headings are hard to read raw; prose
// and simple lists stand as they streamed.
func rendersRicher(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, "#") {
			return true
		}
	}
	return false
}
