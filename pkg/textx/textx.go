// Package textx provides small text utilities used across the project.
package textx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseSpace sanitizes s and joins its fields with single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(SanitizeText(s)), " ")
}

// Truncate cuts s to at most max runes, never splitting a rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// ConfinePath resolves path and returns it only when it lies inside one of roots.
// With no roots, the OS temp dir and the working directory are allowed.
func ConfinePath(path string, roots ...string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if len(roots) == 0 {
		roots = []string{os.TempDir()}
		if wd, err := os.Getwd(); err == nil {
			roots = append(roots, wd)
		}
	}
	for _, root := range roots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		r = filepath.Clean(r)
		if abs == r || strings.HasPrefix(abs, r+string(os.PathSeparator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("disallowed path: %s", abs)
}
