package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every input validation failure so
	// transports can map the whole family to one status code.
	ErrValidation = errors.New("invalid request")

	ErrInvalidToken         = fmt.Errorf("%w: token is required", ErrValidation)
	ErrInvalidEventID       = fmt.Errorf("%w: event_id must be positive", ErrValidation)
	ErrInvalidItemID        = fmt.Errorf("%w: item_id must be positive", ErrValidation)
	ErrInvalidParticipantID = fmt.Errorf("%w: participant_id must be positive", ErrValidation)
	ErrInvalidPage          = fmt.Errorf("%w: page is out of range", ErrValidation)
	ErrInvalidPhone         = fmt.Errorf("%w: phone must contain at least %d digits", ErrValidation, minPhoneDigits)

	ErrParticipantNotFound = errors.New("participant not found")

	// ErrConflict means the conditional update changed nothing: the item
	// was already completed or was never allocated to this participant.
	ErrConflict = errors.New("already completed or not allocated")
)
