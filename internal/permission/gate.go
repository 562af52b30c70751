// Package permission implements the permission gate: mode handling, layered
// allow/deny/ask rule sets loaded from settings files across session, local,
// project, user, and policy scope, and the evaluation order spec.md §4.2
// requires.
package permission

import "sync"

// Mode is the active permission mode for a conversation.
type Mode string

const (
	ModeDefault           Mode = "default"
	ModeAcceptEdits       Mode = "acceptEdits"
	ModePlan              Mode = "plan"
	ModeBypassPermissions Mode = "bypassPermissions"
	ModeDontAsk           Mode = "dontAsk"
)

// Decision is the Gate's verdict for one tool-use.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// CheckRequest carries everything the Gate needs to decide one tool-use. The
// caller (the scheduler, via the tool.Descriptor it is about to run) supplies
// these rather than the Gate reaching into tool internals.
type CheckRequest struct {
	ToolName string
	// MatchSubject is the projection of the call's input the pattern matcher
	// runs against: a file path exactly as the call gives it (a relative
	// path is not resolved to an absolute one), a shell command, a qualified
	// skill name. Empty if the tool has no natural subject.
	MatchSubject string
	// NeedsPermission is Descriptor.NeedsPermissions(input) for this call.
	NeedsPermission bool
	// IsEditClass marks file-mutating tools (Edit, Write, NotebookEdit, ...)
	// so ModeAcceptEdits can auto-allow them without also auto-allowing
	// Bash or other effectful-but-non-edit tools.
	IsEditClass bool
}

// layer holds one source's rule lists.
type layer struct {
	allow []Rule
	deny  []Rule
	ask   []Rule
}

// Gate evaluates permission decisions for tool-use calls. Safe for
// concurrent use; the scheduler calls Check from many per-call goroutines.
type Gate struct {
	mu      sync.RWMutex
	mode    Mode
	matcher Matcher
	layers  map[Source]*layer
}

// NewGate constructs a Gate in ModeDefault with no rules loaded.
func NewGate(matcher Matcher) *Gate {
	if matcher == nil {
		matcher = globMatcher{}
	}
	g := &Gate{mode: ModeDefault, matcher: matcher, layers: make(map[Source]*layer)}
	for _, s := range allSources {
		g.layers[s] = &layer{}
	}
	return g
}

// Mode satisfies tool.PermissionView.
func (g *Gate) Mode() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return string(g.mode)
}

// SetMode changes the active mode, typically from a session command like
// "/plan" or "/accept-edits".
func (g *Gate) SetMode(m Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = m
}

// SetRules replaces the allow/deny/ask rule lists for one source. Called on
// initial load and on every settings-file reload.
func (g *Gate) SetRules(source Source, allow, deny, ask []Rule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layers[source] = &layer{allow: allow, deny: deny, ask: ask}
}

// Check runs the evaluation order from spec.md §4.2:
//
//  1. ModeBypassPermissions allows unconditionally.
//  2. ModePlan denies any call that needs permission (plan mode takes no
//     effectful action).
//  3. Deny rules, checked across all sources, first match wins.
//  4. Allow rules, same precedence.
//  5. ModeAcceptEdits auto-allows edit-class calls not already denied.
//  6. ModeDontAsk auto-allows everything not already denied.
//  7. Otherwise Ask.
//
// A call that does not need permission at all (NeedsPermission false) is
// always Allow, independent of mode and rules.
func (g *Gate) Check(req CheckRequest) (Decision, Rule) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !req.NeedsPermission {
		return DecisionAllow, Rule{}
	}
	if g.mode == ModeBypassPermissions {
		return DecisionAllow, Rule{}
	}
	if g.mode == ModePlan {
		return DecisionDeny, Rule{}
	}
	if r, ok := g.findMatch(req, func(l *layer) []Rule { return l.deny }); ok {
		return DecisionDeny, r
	}
	if r, ok := g.findMatch(req, func(l *layer) []Rule { return l.allow }); ok {
		return DecisionAllow, r
	}
	if g.mode == ModeAcceptEdits && req.IsEditClass {
		return DecisionAllow, Rule{}
	}
	if g.mode == ModeDontAsk {
		return DecisionAllow, Rule{}
	}
	if r, ok := g.findMatch(req, func(l *layer) []Rule { return l.ask }); ok {
		return DecisionAsk, r
	}
	return DecisionAsk, Rule{}
}

func (g *Gate) findMatch(req CheckRequest, pick func(*layer) []Rule) (Rule, bool) {
	for _, source := range allSources {
		l := g.layers[source]
		if l == nil {
			continue
		}
		for _, rule := range pick(l) {
			if !rule.MatchesToolName(req.ToolName) {
				continue
			}
			if rule.InputPattern == "" {
				return rule, true
			}
			ok, err := g.matcher.Match(rule.InputPattern, req.MatchSubject)
			if err == nil && ok {
				return rule, true
			}
		}
	}
	return Rule{}, false
}
