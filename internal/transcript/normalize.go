package transcript

// Message is one normalized message: exactly one block, with a uuid derived
// deterministically from its originating source message and block index.
type Message struct {
	UUID           string
	ParentUUID     string
	Role           Role
	Block          Block
	ModelMessageID string
	IsAPIError     bool
}

// Normalize flattens every multi-block source message into one normalized
// Message per block (spec.md §4.5). Re-normalizing the same input is
// pointwise identical on uuids (P10), since DeriveBlockUUID is pure.
func Normalize(messages []SourceMessage) []Message {
	out := make([]Message, 0, len(messages))
	for _, src := range messages {
		for i, block := range src.Blocks {
			out = append(out, Message{
				UUID:           DeriveBlockUUID(src.UUID, i),
				ParentUUID:     src.UUID,
				Role:           src.Role,
				Block:          block,
				ModelMessageID: src.ModelMessageID,
				IsAPIError:     src.IsAPIError,
			})
		}
	}
	return out
}
