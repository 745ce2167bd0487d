package interview

import "strings"

var (
	strongTriggers = []string{"write a", "code for", "implement a", "sql query"}
	broadTriggers  = []string{"write", "create", "implement", "code", "solution", "function", "script", "query", "sql", "python", "pandas"}
	// Phrases that mean the text talks about code the candidate already wrote.
	negativePhrases = []string{"your code", "you provided"}
)

// IsCodingQuestion reports whether text asks the candidate to write code.
// It only picks a rendering surface and must never feed into scoring.
func IsCodingQuestion(text string) bool {
	t := strings.ToLower(text)
	for _, p := range negativePhrases {
		if strings.Contains(t, p) {
			return false
		}
	}
	for _, p := range strongTriggers {
		if strings.Contains(t, p) {
			return true
		}
	}
	hits := 0
	for _, k := range broadTriggers {
		if strings.Contains(t, k) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
