package permission

import (
	"fmt"
	"regexp"
	"strings"
)

// Behavior is the effect a matching rule has.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
	BehaviorAsk   Behavior = "ask"
)

// Source identifies which layer a rule (or a mode change) came from.
type Source string

const (
	SourceSession  Source = "session"
	SourceLocal    Source = "localSettings"
	SourceProject  Source = "projectSettings"
	SourceUser     Source = "userSettings"
	SourcePolicy   Source = "policySettings"
)

// allSources is the precedence used when loading rule sets into the
// effective union; Source itself carries no ordering, only Check's
// step-by-step evaluation (spec.md §4.2) does.
var allSources = []Source{SourcePolicy, SourceUser, SourceProject, SourceLocal, SourceSession}

// Rule is one parsed permission rule: "ToolName", "ToolName(pattern)",
// "mcp__server__tool", or "mcp__server__*".
type Rule struct {
	Raw             string
	ToolNamePattern string
	InputPattern    string // "" means match any input
}

var ruleRe = regexp.MustCompile(`^([A-Za-z0-9_*]+)(?:\((.*)\))?$`)

// ParseRule parses the textual rule syntax from spec.md §6.
func ParseRule(text string) (Rule, error) {
	trimmed := strings.TrimSpace(text)
	m := ruleRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Rule{}, fmt.Errorf("invalid permission rule %q", text)
	}
	pattern := ""
	if len(m) > 2 {
		pattern = m[2]
	}
	return Rule{Raw: trimmed, ToolNamePattern: m[1], InputPattern: pattern}, nil
}

// MatchesToolName reports whether name satisfies this rule's tool-name
// portion, which may itself be a glob (for namespace prefixes like
// "mcp__server__*").
func (r Rule) MatchesToolName(name string) bool {
	if !strings.ContainsAny(r.ToolNamePattern, "*?[") {
		return r.ToolNamePattern == name
	}
	ok, err := DefaultMatch(r.ToolNamePattern, name)
	return err == nil && ok
}
