package font

import (
	"strings"

	"golang.org/x/image/math/fixed"
)

// Wrap breaks s into lines no wider than width pixels. Lines are broken between words; a word that is wider than a
// line on its own is broken between characters. Explicit newlines are kept.
func Wrap(f *Face, s string, width int) []string {
	limit := fixed.I(width)
	space := f.Measure(" ")

	var lines []string
	for _, paragraph := range strings.Split(s, "\n") {
		var line strings.Builder
		var lineWidth fixed.Int26_6

		flush := func() {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}

		for _, word := range strings.Fields(paragraph) {
			wordWidth := f.Measure(word)

			switch {
			case line.Len() == 0 && wordWidth <= limit:
				line.WriteString(word)
				lineWidth = wordWidth
			case line.Len() > 0 && lineWidth+space+wordWidth <= limit:
				line.WriteByte(' ')
				line.WriteString(word)
				lineWidth += space + wordWidth
			case wordWidth <= limit:
				flush()
				line.WriteString(word)
				lineWidth = wordWidth
			default:
				// The word doesn't fit on a line at all. Break it wherever it overflows.
				if line.Len() > 0 {
					flush()
				}
				for _, c := range word {
					cw := f.Measure(string(c))
					if line.Len() > 0 && lineWidth+cw > limit {
						flush()
					}
					line.WriteRune(c)
					lineWidth += cw
				}
			}
		}
		flush()
	}
	return lines
}
