package transcript

// Reorder implements spec.md §4.5's reorder(normalized): every tool_result
// is spliced to sit immediately after the normalized tool_use block it
// resolves, and only the most recent progress message survives for any
// given tool-use id. Non-tool_use/tool_result/progress messages (plain
// text, thinking, user text/image) keep their relative order.
func Reorder(normalized []Message) []Message {
	toolResults := make(map[string]Message)
	latestProgress := make(map[string]Message)
	rest := make([]Message, 0, len(normalized))

	for _, m := range normalized {
		switch {
		case m.Block.Type == BlockToolResult:
			toolResults[m.Block.ToolUseID] = m
		case m.Role == RoleProgress:
			latestProgress[m.Block.ToolUseID] = m
		default:
			rest = append(rest, m)
		}
	}

	out := make([]Message, 0, len(normalized))
	for _, m := range rest {
		out = append(out, m)
		if m.Block.Type != BlockToolUse {
			continue
		}
		id := m.Block.ToolUseID
		if tr, ok := toolResults[id]; ok {
			out = append(out, tr)
			continue
		}
		if p, ok := latestProgress[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// UnresolvedToolUseIDs returns tool-use ids with no matching tool_result in
// ordered, in the order their tool_use blocks appear.
func UnresolvedToolUseIDs(ordered []Message) []string {
	resolved := make(map[string]bool)
	for _, m := range ordered {
		if m.Block.Type == BlockToolResult {
			resolved[m.Block.ToolUseID] = true
		}
	}
	var ids []string
	for _, m := range ordered {
		if m.Block.Type == BlockToolUse && !resolved[m.Block.ToolUseID] {
			ids = append(ids, m.Block.ToolUseID)
		}
	}
	return ids
}

// InProgressToolUseIDs implements P6: the first unresolved id is always
// in-progress (it's either running or about to start); any other unresolved
// id counts only if its latest progress event is not the queued/"Waiting…"
// sentinel.
func InProgressToolUseIDs(ordered []Message) []string {
	unresolved := UnresolvedToolUseIDs(ordered)
	if len(unresolved) == 0 {
		return nil
	}
	latestProgress := make(map[string]string)
	for _, m := range ordered {
		if m.Role == RoleProgress {
			latestProgress[m.Block.ToolUseID] = m.Block.Text
		}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(unresolved[0])
	for _, id := range unresolved[1:] {
		if latestProgress[id] != QueuedProgressBody {
			add(id)
		}
	}
	return out
}

// ErroredToolUseIDs returns ids whose tool_result has IsError set.
func ErroredToolUseIDs(ordered []Message) []string {
	var out []string
	for _, m := range ordered {
		if m.Block.Type == BlockToolResult && m.Block.IsError {
			out = append(out, m.Block.ToolUseID)
		}
	}
	return out
}

// StaticPrefixLength implements spec.md §4.5: the length of the longest
// prefix of ordered whose messages will never change on a later turn — a
// non-tool_use assistant block, a user message, or a resolved tool_use.
// The UI renders this prefix once and re-renders only the suffix, so the
// result must only ever grow turn-over-turn (P5); callers rely on
// StaticPrefixLength(S_t) uuids being a literal prefix of S_{t+1}'s uuids,
// which holds because resolution only ever adds information, never removes
// a message from the static region.
func StaticPrefixLength(ordered []Message) int {
	resolved := make(map[string]bool)
	for _, m := range ordered {
		if m.Block.Type == BlockToolResult {
			resolved[m.Block.ToolUseID] = true
		}
	}
	n := 0
	for _, m := range ordered {
		switch m.Block.Type {
		case BlockToolUse:
			if !resolved[m.Block.ToolUseID] {
				return n
			}
		case BlockToolResult:
			// counted alongside its tool_use above; falls through to n++
		}
		if m.Role == RoleProgress {
			return n
		}
		n++
	}
	return n
}
