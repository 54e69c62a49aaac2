package store

import "context"

// CompletionLogStore persists completions as an append-only audit log.
// There is at most one entry per (event, item, participant); a second
// Append for the same triple fails with ErrConstraint.
type CompletionLogStore interface {
	Append(ctx context.Context, e CompletionLogEntry) error
	ListForParticipant(ctx context.Context, participantID int64) ([]CompletionLogEntry, error)
}

// LogBackfiller writes an entry only when its triple has none yet and
// reports whether it wrote.
type LogBackfiller interface {
	AppendIfAbsent(ctx context.Context, e CompletionLogEntry) (bool, error)
}
