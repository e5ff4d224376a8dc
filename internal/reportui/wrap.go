package reportui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

type termRange struct {
	start int
	end   int
}

// buildStyledRunes styles every rune of text, highlighting case-insensitive
// occurrences of terms with highlight.
func buildStyledRunes(text string, terms []string, base, highlight lipgloss.Style) []styledRune {
	runes := []rune(text)
	marked := markTerms(runes, terms)
	out := make([]styledRune, 0, len(runes))
	for i, r := range runes {
		style := base
		if marked[i] {
			style = highlight
		}
		isSpace := r == ' '
		s := string(r)
		if !isSpace {
			s = style.Render(s)
		}
		out = append(out, styledRune{
			s:       s,
			width:   runewidth.RuneWidth(r),
			isSpace: isSpace,
		})
	}
	return out
}

func markTerms(runes []rune, terms []string) []bool {
	marked := make([]bool, len(runes))
	lower := []rune(strings.ToLower(string(runes)))
	if len(lower) != len(runes) {
		return marked
	}
	for _, term := range terms {
		for _, rg := range findTerm(lower, []rune(strings.ToLower(term))) {
			for i := rg.start; i < rg.end; i++ {
				marked[i] = true
			}
		}
	}
	return marked
}

// findTerm returns whole-word matches of term in text.
func findTerm(text, term []rune) []termRange {
	if len(term) == 0 {
		return nil
	}
	var out []termRange
	for i := 0; i+len(term) <= len(text); i++ {
		if string(text[i:i+len(term)]) != string(term) {
			continue
		}
		end := i + len(term)
		if i > 0 && isWordRune(text[i-1]) {
			continue
		}
		if end < len(text) && isWordRune(text[end]) {
			continue
		}
		out = append(out, termRange{start: i, end: end})
		i = end - 1
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 0x7f
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks at the last space that fits; words wider than the
// line are split.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

// wrapParagraph wraps each line of text separately, keeping blank lines.
func wrapParagraph(text string, terms []string, width int, base, highlight lipgloss.Style) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapStyledRunes(buildStyledRunes(line, terms, base, highlight), width)
	}
	return strings.Join(lines, "\n")
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
