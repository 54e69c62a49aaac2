package types

type CompleteRequest struct {
	Token      string `json:"token"`
	EventID    int64  `json:"event_id"`
	ItemID     int64  `json:"item_id"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type CompleteResponse struct {
	OK            bool   `json:"ok"`
	ParticipantID int64  `json:"participant_id"`
	EventID       int64  `json:"event_id"`
	ItemID        int64  `json:"item_id"`
	EntryID       string `json:"entry_id,omitempty"` // empty when the audit append failed
	CompletedAt   string `json:"completed_at"`
}

type PendingItemsResponse struct {
	OK          bool         `json:"ok"`
	EventID     int64        `json:"event_id"`
	Participant Participant  `json:"participant"`
	Allocations []Allocation `json:"allocations"`
	Pending     []Allocation `json:"pending"`
}

type NotCompletedResponse struct {
	OK      bool              `json:"ok"`
	EventID int64             `json:"event_id,omitempty"`
	ItemID  int64             `json:"item_id"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Total   int               `json:"total"`
	Rows    []NotCompletedRow `json:"rows"`
}

type NotCompletedRow struct {
	Participant Participant `json:"participant"`
	Allocation  Allocation  `json:"allocation"`
}

// ErrorResponse is the body of every non-2xx HTTP reply.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
