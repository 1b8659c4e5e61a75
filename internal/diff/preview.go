// Package diff renders compact line diffs for change previews in tool
// results.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextCollapse elides unchanged runs longer than this many lines.
const contextCollapse = 3

// Preview is a rendered line diff plus its change counts.
type Preview struct {
	Text    string
	Added   int
	Removed int
}

// Changed reports whether the texts differ at all.
func (p Preview) Changed() bool {
	return p.Added > 0 || p.Removed > 0
}

// Summary is a one-line change description for prompts and logs.
func (p Preview) Summary() string {
	if !p.Changed() {
		return "no changes"
	}
	parts := make([]string, 0, 2)
	if p.Added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", p.Added))
	}
	if p.Removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", p.Removed))
	}
	return strings.Join(parts, " ") + " lines"
}

// Lines computes a line-level diff between two texts. Unchanged runs longer
// than a few lines collapse to a count marker so previews stay readable for
// large documents.
func Lines(oldText, newText string) Preview {
	if oldText == newText {
		return Preview{}
	}

	// The line tokenizer treats a final line without a newline as a
	// distinct token, which turns an appended line into a spurious
	// replace of the last one. Normalize both sides.
	if oldText != "" && !strings.HasSuffix(oldText, "\n") {
		oldText += "\n"
	}
	if newText != "" && !strings.HasSuffix(newText, "\n") {
		newText += "\n"
	}

	dmp := diffmatchpatch.New()
	a, b, lineIndex := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineIndex)

	var out strings.Builder
	var added, removed int
	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(lines)
			writePrefixed(&out, "+", lines)
		case diffmatchpatch.DiffDelete:
			removed += len(lines)
			writePrefixed(&out, "-", lines)
		default:
			if len(lines) > contextCollapse {
				writePrefixed(&out, " ", lines[:1])
				fmt.Fprintf(&out, "  … %d unchanged lines\n", len(lines)-2)
				writePrefixed(&out, " ", lines[len(lines)-1:])
				continue
			}
			writePrefixed(&out, " ", lines)
		}
	}

	return Preview{
		Text:    strings.TrimSuffix(out.String(), "\n"),
		Added:   added,
		Removed: removed,
	}
}

func splitLines(chunk string) []string {
	chunk = strings.TrimSuffix(chunk, "\n")
	if chunk == "" {
		return []string{""}
	}
	return strings.Split(chunk, "\n")
}

func writePrefixed(out *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		out.WriteString(prefix)
		out.WriteString(line)
		out.WriteByte('\n')
	}
}
