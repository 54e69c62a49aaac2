package types

import (
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

type Participant struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
}

type Allocation struct {
	EventID     int64  `json:"event_id"`
	ItemID      int64  `json:"item_id"`
	ItemCode    string `json:"item_code,omitempty"`
	ItemName    string `json:"item_name,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	StaffID     *int64 `json:"staff_id,omitempty"`
	DeviceInfo  string `json:"device_info,omitempty"`
}

type LookupResponse struct {
	OK          bool        `json:"ok"`
	Participant Participant `json:"participant"`
}

type SummaryResponse struct {
	OK            bool    `json:"ok"`
	ParticipantID int64   `json:"participant_id"`
	EventID       int64   `json:"event_id,omitempty"`
	Pending       int     `json:"pending"`
	Completed     int     `json:"completed"`
	Total         int     `json:"total"`
	EventIDs      []int64 `json:"event_ids"`
}

type HistoryResponse struct {
	OK            bool         `json:"ok"`
	ParticipantID int64        `json:"participant_id"`
	Page          int          `json:"page"`
	Limit         int          `json:"limit"`
	Items         []Allocation `json:"items"`
}

// NewParticipant drops the scan token; it is a credential and never leaves
// the server.
func NewParticipant(p store.Participant) Participant {
	return Participant{
		ID:      p.ID,
		Name:    p.Name,
		Email:   p.Email,
		Phone:   p.Phone,
		Company: p.Company,
	}
}

func NewAllocation(a store.Allocation) Allocation {
	out := Allocation{
		EventID:   a.EventID,
		ItemID:    a.ItemID,
		ItemCode:  a.ItemCode,
		ItemName:  a.ItemName,
		Status:    string(a.Status),
		CreatedAt: formatTime(a.CreatedAt),
		UpdatedAt: formatTime(a.UpdatedAt),
		StaffID:   a.StaffID,
	}
	if a.CompletedAt != nil {
		out.CompletedAt = formatTime(*a.CompletedAt)
	}
	if a.DeviceInfo != nil {
		out.DeviceInfo = *a.DeviceInfo
	}
	return out
}

func NewAllocations(in []store.Allocation) []Allocation {
	out := make([]Allocation, 0, len(in))
	for _, a := range in {
		out = append(out, NewAllocation(a))
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
