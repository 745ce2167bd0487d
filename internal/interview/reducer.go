package interview

import (
	"strings"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Reduce renders the spoken turns of a transcript as plain text for the judge.
// Directive turns are skipped; order is preserved.
func Reduce(tr domain.Transcript) string {
	var b strings.Builder
	for _, t := range tr {
		if t.IsDirective() {
			continue
		}
		b.WriteString(t.Speaker.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}
