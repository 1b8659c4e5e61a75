package telegram

import (
	"regexp"
	"strings"
)

// MaxMessageRunes is the outbound chunk ceiling; longer replies are split at
// the nearest preceding newline.
const MaxMessageRunes = 4000

var (
	imagePattern   = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)[^)]*\)`)
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingPattern = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	rulePattern    = regexp.MustCompile(`^\s*(-{3,}|\*{3,}|_{3,})\s*$`)
)

// ToLegacyMarkdown coerces model output into the legacy Markdown dialect the
// Bot API parses: headings become bold lines, double-star emphasis becomes
// single-star, images collapse to their URL, blockquotes are drawn with a bar
// prefix and horizontal rules with a dash glyph. Fenced code blocks pass
// through untouched.
func ToLegacyMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		out = append(out, normalizeLine(line))
	}
	return strings.Join(out, "\n")
}

func normalizeLine(line string) string {
	if rulePattern.MatchString(line) {
		return "———"
	}
	line = imagePattern.ReplaceAllString(line, "$1")
	line = boldPattern.ReplaceAllString(line, "*$1*")
	if m := headingPattern.FindStringSubmatch(line); m != nil {
		title := strings.TrimSpace(strings.ReplaceAll(m[1], "*", ""))
		if title == "" {
			return ""
		}
		return "*" + title + "*"
	}
	if q := strings.TrimLeft(line, " "); strings.HasPrefix(q, ">") {
		return "│ " + strings.TrimPrefix(strings.TrimPrefix(q, ">"), " ")
	}
	return line
}

// SplitMessage breaks text into chunks of at most limit runes, cutting at the
// nearest newline before the boundary when one exists and hard-wrapping when
// a single line exceeds the limit on its own.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		newline := -1
		for i := limit; i >= 1; i-- {
			if runes[i] == '\n' {
				newline = i
				break
			}
		}
		if newline > 0 {
			parts = append(parts, string(runes[:newline]))
			runes = runes[newline+1:]
			continue
		}
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
