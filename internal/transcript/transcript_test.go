package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func toolUseSrc(uuid, id, name string) SourceMessage {
	return SourceMessage{UUID: uuid, Role: RoleAssistant, Blocks: []Block{
		{Type: BlockToolUse, ToolUseID: id, ToolName: name},
	}}
}

func toolResultSrc(uuid, id, content string, isErr bool) SourceMessage {
	return SourceMessage{UUID: uuid, Role: RoleUser, Blocks: []Block{
		{Type: BlockToolResult, ToolUseID: id, Content: content, IsError: isErr},
	}}
}

func progressSrc(uuid, id, wrapped string) SourceMessage {
	return SourceMessage{UUID: uuid, Role: RoleProgress, Blocks: []Block{
		{Type: BlockText, ToolUseID: id, Text: wrapped},
	}}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	// P10: normalizing the same input twice yields pointwise-identical uuids.
	msgs := []SourceMessage{
		{UUID: "m1", Role: RoleAssistant, Blocks: []Block{
			{Type: BlockText, Text: "thinking about it"},
			{Type: BlockToolUse, ToolUseID: "a", ToolName: "A-safe"},
		}},
	}
	first := Normalize(msgs)
	second := Normalize(msgs)
	require.Len(t, first, 2)
	require.Equal(t, first[0].UUID, second[0].UUID)
	require.Equal(t, first[1].UUID, second[1].UUID)
	require.NotEqual(t, first[0].UUID, first[1].UUID)
}

func TestReorderSplicesToolResultAfterToolUse(t *testing.T) {
	msgs := []SourceMessage{
		{UUID: "m1", Role: RoleAssistant, Blocks: []Block{
			{Type: BlockToolUse, ToolUseID: "a", ToolName: "A-safe"},
			{Type: BlockToolUse, ToolUseID: "b", ToolName: "B-safe"},
		}},
		toolResultSrc("m2", "b", "ok-b", false),
		toolResultSrc("m3", "a", "ok-a", false),
	}
	ordered := Reorder(Normalize(msgs))
	require.Len(t, ordered, 4)
	require.Equal(t, BlockToolUse, ordered[0].Block.Type)
	require.Equal(t, "a", ordered[0].Block.ToolUseID)
	require.Equal(t, BlockToolResult, ordered[1].Block.Type)
	require.Equal(t, "a", ordered[1].Block.ToolUseID)
	require.Equal(t, BlockToolUse, ordered[2].Block.Type)
	require.Equal(t, "b", ordered[2].Block.ToolUseID)
	require.Equal(t, BlockToolResult, ordered[3].Block.Type)
	require.Equal(t, "b", ordered[3].Block.ToolUseID)
}

func TestQueuedProgressDoesNotCountAsInProgress(t *testing.T) {
	// P6.
	msgs := []SourceMessage{
		toolUseSrc("m1", "barrier", "Unsafe"),
		toolUseSrc("m2", "after", "Safe"),
		progressSrc("m3", "after", QueuedProgressBody),
	}
	ordered := Reorder(Normalize(msgs))
	inProgress := InProgressToolUseIDs(ordered)
	require.Contains(t, inProgress, "barrier")
	require.NotContains(t, inProgress, "after")
}

func TestRunningProgressReplacesWaitingAndCountsAsInProgress(t *testing.T) {
	msgs := []SourceMessage{
		toolUseSrc("m1", "barrier", "Unsafe"),
		toolResultSrc("m2", "barrier", "ok", false),
		toolUseSrc("m3", "after", "Safe"),
		progressSrc("m4", "after", QueuedProgressBody),
		progressSrc("m5", "after", WrapProgress("50%")),
	}
	ordered := Reorder(Normalize(msgs))
	inProgress := InProgressToolUseIDs(ordered)
	require.Contains(t, inProgress, "after")

	// Only the latest progress for "after" survives in the ordered sequence.
	count := 0
	for _, m := range ordered {
		if m.Role == RoleProgress && m.Block.ToolUseID == "after" {
			count++
			require.Equal(t, WrapProgress("50%"), m.Block.Text)
		}
	}
	require.Equal(t, 1, count)
}

func TestErroredToolUseIDs(t *testing.T) {
	msgs := []SourceMessage{
		toolUseSrc("m1", "fail", "Boom"),
		toolResultSrc("m2", "fail", "boom", true),
	}
	ordered := Reorder(Normalize(msgs))
	require.Equal(t, []string{"fail"}, ErroredToolUseIDs(ordered))
}

func TestStaticPrefixLengthGrowsMonotonically(t *testing.T) {
	// S6: user -> toolUse(a,b) -> progress(a) -> progress(b=Waiting) ->
	// result(a) -> progress(b=Running) -> result(b).
	user := SourceMessage{UUID: "u1", Role: RoleUser, Blocks: []Block{{Type: BlockText, Text: "go"}}}
	toolUses := SourceMessage{UUID: "m1", Role: RoleAssistant, Blocks: []Block{
		{Type: BlockToolUse, ToolUseID: "a", ToolName: "A-safe"},
		{Type: BlockToolUse, ToolUseID: "b", ToolName: "B-safe"},
	}}

	step1 := []SourceMessage{user, toolUses}
	step2 := append(step1, progressSrc("p1", "a", WrapProgress("working")))
	step3 := append(step2, progressSrc("p2", "b", QueuedProgressBody))
	step4 := append(step3, toolResultSrc("r1", "a", "ok-a", false))
	step5 := append(step4, progressSrc("p3", "b", WrapProgress("working")))
	step6 := append(step5, toolResultSrc("r2", "b", "ok-b", false))

	steps := [][]SourceMessage{step1, step2, step3, step4, step5, step6}
	var prevUUIDs []string
	var prevPrefixLen int
	for _, step := range steps {
		ordered := Reorder(Normalize(step))
		prefixLen := StaticPrefixLength(ordered)
		require.GreaterOrEqual(t, prefixLen, prevPrefixLen)

		uuids := make([]string, len(ordered))
		for i, m := range ordered {
			uuids[i] = m.UUID
		}
		for i := 0; i < prevPrefixLen && i < len(uuids); i++ {
			require.Equal(t, prevUUIDs[i], uuids[i])
		}
		prevUUIDs = uuids
		prevPrefixLen = prefixLen
	}
	// By the final step both calls are resolved: the whole sequence is static.
	finalOrdered := Reorder(Normalize(step6))
	require.Equal(t, len(finalOrdered), StaticPrefixLength(finalOrdered))
}

func TestNormalizeForAPIDropsProgressAndFloatsToolResults(t *testing.T) {
	msgs := Normalize([]SourceMessage{
		{UUID: "m1", Role: RoleAssistant, ModelMessageID: "resp1", Blocks: []Block{
			{Type: BlockText, Text: "on it"},
			{Type: BlockToolUse, ToolUseID: "a", ToolName: "A-safe"},
		}},
		progressSrc("p1", "a", WrapProgress("working")),
		{UUID: "u1", Role: RoleUser, Blocks: []Block{{Type: BlockText, Text: "extra context"}}},
		toolResultSrc("r1", "a", "ok-a", false),
	})

	api := NormalizeForAPI(msgs)
	require.Len(t, api, 2)
	require.Equal(t, RoleAssistant, api[0].Role)
	require.Len(t, api[0].Blocks, 2)

	require.Equal(t, RoleUser, api[1].Role)
	require.Equal(t, BlockToolResult, api[1].Blocks[0].Type)
	require.Equal(t, BlockText, api[1].Blocks[1].Type)
}

func TestNormalizeForAPIDropsAPIErrorMessages(t *testing.T) {
	msgs := Normalize([]SourceMessage{
		{UUID: "m1", Role: RoleAssistant, IsAPIError: true, Blocks: []Block{{Type: BlockText, Text: "retrying..."}}},
		{UUID: "m2", Role: RoleUser, Blocks: []Block{{Type: BlockText, Text: "hello"}}},
	})
	api := NormalizeForAPI(msgs)
	require.Len(t, api, 1)
	require.Equal(t, RoleUser, api[0].Role)
}
