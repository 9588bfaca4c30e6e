// Package memory provides conversation history storage.
package memory

import (
	"errors"
	"time"
)

// MaxTitleLen caps conversation titles derived from the first user message.
const MaxTitleLen = 100

// Sentinel errors for conversation lookup. Unlike tasks, conversation
// retrieval distinguishes a missing ID from one owned by someone else,
// so the API can answer 404 versus 403.
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationForbidden = errors.New("conversation belongs to another user")
)

// Conversation is one chat thread owned by a user. Archived
// conversations keep their history but drop out of listings.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a stored conversation message.
//
// ToolCalls holds the JSON-encoded tool invocations of an assistant
// message, and ToolCallID correlates a tool-result message back to the
// invocation it answers. Both are empty for plain user and assistant
// text. Compacted messages stay in the history but are excluded from
// the model context.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"` // system, user, assistant, tool
	Content    string    `json:"content"`
	ToolCalls  string    `json:"tool_calls,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Compacted  bool      `json:"compacted,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TruncateTitle derives a conversation title from the first user
// message, capped at MaxTitleLen characters.
func TruncateTitle(s string) string {
	if r := []rune(s); len(r) > MaxTitleLen {
		return string(r[:MaxTitleLen])
	}
	return s
}
