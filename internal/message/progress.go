package message

import "github.com/google/uuid"

// Progress role marks a transient, non-persisted message produced while a
// tool is executing. Progress messages are shown to the UI but are never
// fed back into the next LLM call.
const RoleProgress Role = "progress"

// ProgressInfo carries the fields specific to a progress message: which
// tool-use it reports on, the sibling tool-use ids from the same assistant
// turn, and a short embedded text used purely for transient display.
type ProgressInfo struct {
	ToolUseID string   `json:"tool_use_id"`
	Siblings  []string `json:"siblings,omitempty"`
	Text      string   `json:"text"`
}

// ProgressMessage creates a Progress message for the given tool-use id.
func ProgressMessage(toolUseID string, siblings []string, text string) Message {
	return Message{
		ID:   NewID(),
		Role: RoleProgress,
		Progress: &ProgressInfo{
			ToolUseID: toolUseID,
			Siblings:  siblings,
			Text:      text,
		},
	}
}

// IsProgress reports whether a message is a transient progress message.
func (m Message) IsProgress() bool {
	return m.Role == RoleProgress
}

// NewID returns a fresh unique message id. Every Message carries one so
// callers (session logger, queue, UI) can address a specific message
// without relying on slice position.
func NewID() string {
	return uuid.New().String()
}
