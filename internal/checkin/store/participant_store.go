package store

import "context"

// ParticipantStore is the read side of the external participant registry.
// Lookups return ErrNotFound on a miss.
type ParticipantStore interface {
	GetByID(ctx context.Context, id int64) (Participant, error)
	GetByPhone(ctx context.Context, phone string) (Participant, error)
	GetByScanToken(ctx context.Context, token string) (Participant, error)
}
