package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is a SQLite-backed conversation store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates the conversation store and its schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With("store", "memory")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_archived ON conversations(owner_id, archived);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT,
		tool_call_id TEXT,
		compacted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_compacted ON messages(conversation_id, compacted);

	-- Tool call audit trail (structured, queryable)
	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		duration_ms INTEGER,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateConversation starts a new conversation for owner. The title is
// typically derived from the first user message via TruncateTitle.
func (s *Store) CreateConversation(ownerID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     TruncateTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, owner_id, title, archived, created_at, updated_at)
		VALUES (?, ?, ?, FALSE, ?, ?)
	`, c.ID, c.OwnerID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", c.ID, "owner_id", ownerID)
	return c, nil
}

// GetConversation retrieves a conversation, verifying ownership.
// Returns ErrConversationNotFound for an unknown ID and
// ErrConversationForbidden when the ID belongs to another user.
func (s *Store) GetConversation(ownerID, id string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, title, archived, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	var c Conversation
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if c.OwnerID != ownerID {
		return nil, ErrConversationForbidden
	}
	return &c, nil
}

// ListConversations returns the owner's unarchived conversations, most
// recently active first.
func (s *Store) ListConversations(ownerID string) ([]*Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, title, archived, created_at, updated_at
		FROM conversations WHERE owner_id = ? AND archived = FALSE
		ORDER BY updated_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Archived, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

// ArchiveConversation hides a conversation from listings. The history
// stays retrievable by ID. Ownership rules match GetConversation.
func (s *Store) ArchiveConversation(ownerID, id string) error {
	if _, err := s.GetConversation(ownerID, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE conversations SET archived = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	s.logger.Info("conversation archived", "conversation_id", id, "owner_id", ownerID)
	return nil
}

// AddMessage appends a message and bumps the conversation's updated_at.
// Message IDs are UUIDv7 so lexicographic order matches insertion order.
func (s *Store) AddMessage(conversationID string, m Message) (string, error) {
	now := time.Now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}

	var toolCalls, toolCallID any
	if m.ToolCalls != "" {
		toolCalls = m.ToolCalls
	}
	if m.ToolCallID != "" {
		toolCallID = m.ToolCallID
	}

	_, err = s.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, compacted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), conversationID, m.Role, m.Content, toolCalls, toolCallID, m.Compacted, now)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}

	return id.String(), nil
}

// Messages retrieves the full history of a conversation in insertion
// order, compacted messages included.
func (s *Store) Messages(conversationID string) ([]Message, error) {
	return s.queryMessages(`
		SELECT id, role, content, tool_calls, tool_call_id, compacted, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id ASC
	`, conversationID)
}

// LiveMessages retrieves the non-compacted messages in insertion order.
// This is what the context window is built from.
func (s *Store) LiveMessages(conversationID string) ([]Message, error) {
	return s.queryMessages(`
		SELECT id, role, content, tool_calls, tool_call_id, compacted, created_at
		FROM messages WHERE conversation_id = ? AND compacted = FALSE
		ORDER BY id ASC
	`, conversationID)
}

func (s *Store) queryMessages(q string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &toolCalls, &toolCallID, &m.Compacted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ToolCalls = toolCalls.String
		m.ToolCallID = toolCallID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LiveCount returns the number of non-compacted, non-system messages.
// Compaction triggers off this count.
func (s *Store) LiveCount(conversationID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND compacted = FALSE AND role != 'system'
	`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// MessagesForCompaction returns the older non-system live messages,
// everything except the most recent 'keep'. Returns nil when there is
// nothing worth compacting.
func (s *Store) MessagesForCompaction(conversationID string, keep int) ([]Message, error) {
	msgs, err := s.queryMessages(`
		SELECT id, role, content, tool_calls, tool_call_id, compacted, created_at
		FROM messages
		WHERE conversation_id = ? AND compacted = FALSE AND role != 'system'
		ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) <= keep {
		return nil, nil
	}
	return msgs[:len(msgs)-keep], nil
}

// MarkCompacted flags the given messages as compacted. They remain in
// the history but drop out of the context window.
func (s *Store) MarkCompacted(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE messages SET compacted = TRUE WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark compacted: %w", err)
		}
	}
	return tx.Commit()
}

// AddSummary inserts a compaction summary as a live system message.
func (s *Store) AddSummary(conversationID, summary string) error {
	_, err := s.AddMessage(conversationID, Message{Role: "system", Content: summary})
	return err
}

// ToolCallRecord is an audit entry for one tool invocation.
type ToolCallRecord struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	ToolName       string     `json:"tool_name"`
	Arguments      string     `json:"arguments"`
	Result         string     `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
}

// RecordToolCall records the start of a tool invocation.
func (s *Store) RecordToolCall(conversationID, toolCallID, toolName, arguments string) error {
	_, err := s.db.Exec(`
		INSERT INTO tool_calls (id, conversation_id, tool_name, arguments, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, toolCallID, conversationID, toolName, arguments, time.Now().UTC())
	return err
}

// CompleteToolCall records the outcome of a tool invocation.
func (s *Store) CompleteToolCall(toolCallID, result, errMsg string) error {
	now := time.Now().UTC()

	var startedAt time.Time
	err := s.db.QueryRow(`SELECT started_at FROM tool_calls WHERE id = ?`, toolCallID).Scan(&startedAt)
	if err != nil {
		return fmt.Errorf("tool call not found: %s", toolCallID)
	}

	_, err = s.db.Exec(`
		UPDATE tool_calls
		SET result = ?, error = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, result, errMsg, now, now.Sub(startedAt).Milliseconds(), toolCallID)
	return err
}

// ToolCalls retrieves the audit trail for a conversation, newest first.
func (s *Store) ToolCalls(conversationID string, limit int) ([]ToolCallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.Query(`
		SELECT id, conversation_id, tool_name, arguments, result, error, started_at, completed_at, duration_ms
		FROM tool_calls
		WHERE conversation_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var calls []ToolCallRecord
	for rows.Next() {
		var tc ToolCallRecord
		var result, errMsg sql.NullString
		var completedAt sql.NullTime
		var durationMs sql.NullInt64

		err := rows.Scan(&tc.ID, &tc.ConversationID, &tc.ToolName, &tc.Arguments,
			&result, &errMsg, &tc.StartedAt, &completedAt, &durationMs)
		if err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}

		tc.Result = result.String
		tc.Error = errMsg.String
		if completedAt.Valid {
			tc.CompletedAt = &completedAt.Time
		}
		tc.DurationMs = durationMs.Int64

		calls = append(calls, tc)
	}
	return calls, rows.Err()
}
