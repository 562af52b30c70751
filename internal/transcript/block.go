package transcript

import "encoding/json"

// BlockType identifies the shape of one content block, per spec.md §6.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// Block is one content block: a text/thinking span, a tool invocation
// request, a tool invocation's result, or an image. Which fields apply
// depends on Type.
type Block struct {
	Type BlockType

	// BlockText / BlockThinking
	Text string

	// BlockToolUse
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	// BlockToolResult: ToolUseID above names the call this resolves.
	Content string
	IsError bool

	// BlockImage
	ImageData   string
	ImageMedia  string
}

// Role is the speaker a SourceMessage or Message is attributed to.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleProgress  Role = "progress"
)

// SourceMessage is one message as produced by the agent loop: an assistant
// turn with one or more blocks, a user turn (often a single text block, but
// may carry tool_result/image blocks), or a progress notification. UUID is
// the id the loop assigned when it created the message; ModelMessageID is
// the id the model assigned an assistant turn, used by NormalizeForAPI to
// merge consecutive assistant messages the model itself considers one turn.
type SourceMessage struct {
	UUID           string
	Role           Role
	Blocks         []Block
	ModelMessageID string
	// IsAPIError marks a synthetic assistant message the loop inserted to
	// report a transport/API failure; NormalizeForAPI drops these before the
	// next model call.
	IsAPIError bool
}
