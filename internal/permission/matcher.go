package permission

import (
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether a rule's input pattern matches a tool-use's match
// subject (a file path as the call gives it, a shell command, a qualified
// skill name, ...).
// It is pluggable so callers can swap in stricter matching without touching
// the Gate's evaluation order.
type Matcher interface {
	Match(pattern, subject string) (bool, error)
}

// globMatcher is the default Matcher, backed by gobwas/glob for genuine glob
// patterns and a couple of literal conventions (spec.md §6) for everything
// else:
//
//   - "" matches any subject.
//   - a pattern containing glob metacharacters is compiled and matched with
//     '/' as path separator, so "**/*.go" behaves the way a shell would
//     expect.
//   - a pattern ending in ":*" matches any subject that either equals the
//     prefix, or begins with "<prefix> " (the Bash "first word, any
//     arguments" convention) or "<prefix>:" (the skill namespace-prefix
//     convention).
//   - otherwise, a leading "~" in the pattern expands to the user's home
//     directory before an exact-string comparison.
type globMatcher struct{}

// DefaultMatch is globMatcher.Match as a package-level function, used by
// Rule.MatchesToolName for tool-name glob patterns.
func DefaultMatch(pattern, subject string) (bool, error) {
	return globMatcher{}.Match(pattern, subject)
}

func (globMatcher) Match(pattern, subject string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, ":*")
		return subject == prefix ||
			strings.HasPrefix(subject, prefix+" ") ||
			strings.HasPrefix(subject, prefix+":"), nil
	}
	if strings.ContainsAny(pattern, "*?[{") {
		g, err := glob.Compile(expandHome(pattern), '/')
		if err != nil {
			return false, err
		}
		return g.Match(subject), nil
	}
	return expandHome(pattern) == subject, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + strings.TrimPrefix(p, "~")
}
