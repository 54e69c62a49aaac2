package store

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConstraint wraps integrity violations (FK, unique, check). These
	// are not expected in normal operation because allocations are
	// provisioned ahead of time.
	ErrConstraint = errors.New("store: constraint violation")
)

type AllocationStatus string

const (
	StatusPending   AllocationStatus = "pending"
	StatusCompleted AllocationStatus = "completed"
)

// Valid reports whether s is one of the two allocation states.
func (s AllocationStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// MaxOffset bounds the number of rows a page request may skip.
const MaxOffset = math.MaxInt32

// Page is a 1-based page request.
type Page struct {
	Limit int
	Page  int
}

// Offset is the number of rows before p, saturating at MaxOffset.
func (p Page) Offset() int {
	if p.Page < 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > MaxOffset/p.Limit {
		return MaxOffset
	}
	return (p.Page - 1) * p.Limit
}

// Window returns the [start, end) slice bounds of p over n rows.
func (p Page) Window(n int) (int, int) {
	start := p.Offset()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + p.Limit
	if p.Limit <= 0 || end > n {
		end = n
	}
	return start, end
}

type Participant struct {
	ID        int64
	Name      string
	Email     string
	Phone     string // digits only
	ScanToken string
	Company   string
	CreatedAt time.Time
}

type Allocation struct {
	EventID       int64
	ItemID        int64
	ParticipantID int64
	ItemCode      string
	ItemName      string
	Status        AllocationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	StaffID       *int64
	DeviceInfo    *string
}

// CompletionRecord identifies the allocation to complete and who did it.
type CompletionRecord struct {
	EventID       int64
	ItemID        int64
	ParticipantID int64
	StaffID       *int64
	DeviceInfo    *string
}

// CompletionLogEntry is one append-only audit row.
type CompletionLogEntry struct {
	EntryID       string
	EventID       int64
	ItemID        int64
	ParticipantID int64
	StaffID       *int64
	DeviceInfo    *string
	LoggedAt      time.Time
}

type HistoryFilter struct {
	Status  AllocationStatus // empty = any
	EventID int64            // 0 = any
}

type NotCompletedFilter struct {
	EventID int64 // 0 = any
	ItemID  int64
}

// NotCompletedRow pairs a pending allocation with its participant.
type NotCompletedRow struct {
	Participant Participant
	Allocation  Allocation
}

type Summary struct {
	Pending   int
	Completed int
	EventIDs  []int64 // every event the participant has allocations in, newest id first
}
