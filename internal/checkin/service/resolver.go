package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

// minPhoneDigits is the shortest digit run treated as a phone number.
const minPhoneDigits = 7

// Resolver maps a scanned token to a participant.
//
// Precedence is fixed: a token carrying at least minPhoneDigits digits is
// first looked up as a phone number (digits only). A phone miss, or a token
// that is not phone-shaped, falls through to an exact scan-token match.
type Resolver struct {
	participants store.ParticipantStore
	metrics      *metrics.Metrics
}

func NewResolver(ps store.ParticipantStore, m *metrics.Metrics) *Resolver {
	return &Resolver{participants: ps, metrics: m}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (store.Participant, error) {
	if strings.TrimSpace(token) == "" {
		return store.Participant{}, ErrInvalidToken
	}

	if digits := digitsOnly(token); len(digits) >= minPhoneDigits {
		p, err := r.participants.GetByPhone(ctx, digits)
		if err == nil {
			r.metrics.IncResolution("phone")
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Participant{}, fmt.Errorf("resolve by phone: %w", err)
		}
	}

	p, err := r.participants.GetByScanToken(ctx, token)
	switch {
	case err == nil:
		r.metrics.IncResolution("token")
		return p, nil
	case errors.Is(err, store.ErrNotFound):
		r.metrics.IncResolution("miss")
		return store.Participant{}, ErrParticipantNotFound
	default:
		return store.Participant{}, fmt.Errorf("resolve by token: %w", err)
	}
}

// ResolvePhone looks up a participant by phone only. Formatting characters
// are ignored; fewer than minPhoneDigits digits is a validation error.
func (r *Resolver) ResolvePhone(ctx context.Context, phone string) (store.Participant, error) {
	digits := digitsOnly(phone)
	if len(digits) < minPhoneDigits {
		return store.Participant{}, ErrInvalidPhone
	}
	p, err := r.participants.GetByPhone(ctx, digits)
	if errors.Is(err, store.ErrNotFound) {
		return store.Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return store.Participant{}, fmt.Errorf("resolve by phone: %w", err)
	}
	return p, nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
