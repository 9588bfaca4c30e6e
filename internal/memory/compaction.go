package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Summarizer generates a prose summary of older messages for compaction.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// Compactor folds the older portion of a long conversation into a
// single summary message. The originals are marked compacted, so they
// stay in the history but leave the context window.
type Compactor struct {
	store      *Store
	summarizer Summarizer
	threshold  int // live message count that triggers compaction
	keepRecent int // recent messages that survive compaction
	logger     *slog.Logger
}

// NewCompactor creates a compactor.
func NewCompactor(store *Store, summarizer Summarizer, threshold, keepRecent int, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		store:      store,
		summarizer: summarizer,
		threshold:  threshold,
		keepRecent: keepRecent,
		logger:     logger.With("component", "compactor"),
	}
}

// NeedsCompaction reports whether the conversation has accumulated
// enough live messages to be worth compacting.
func (c *Compactor) NeedsCompaction(conversationID string) bool {
	n, err := c.store.LiveCount(conversationID)
	if err != nil {
		c.logger.Warn("live count failed", "conversation_id", conversationID, "error", err)
		return false
	}
	return n >= c.threshold
}

// Compact summarizes everything but the most recent messages and
// replaces them in the context window with one system summary.
func (c *Compactor) Compact(ctx context.Context, conversationID string) error {
	messages, err := c.store.MessagesForCompaction(conversationID, c.keepRecent)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	summary, err := c.summarizer.Summarize(ctx, messages)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	if err := c.store.MarkCompacted(ids); err != nil {
		return fmt.Errorf("mark compacted: %w", err)
	}

	if err := c.store.AddSummary(conversationID, formatSummary(messages, summary)); err != nil {
		return fmt.Errorf("add summary: %w", err)
	}

	c.logger.Info("conversation compacted",
		"conversation_id", conversationID,
		"messages", len(messages),
		"keep_recent", c.keepRecent,
	)
	return nil
}

// formatSummary frames the summary so the model knows it is reading
// condensed history rather than a live exchange.
func formatSummary(messages []Message, summary string) string {
	var sb strings.Builder
	sb.WriteString("[Conversation Summary]\n")
	fmt.Fprintf(&sb, "Messages compacted: %d\n\n", len(messages))
	sb.WriteString(summary)
	return sb.String()
}
