package audit

import "time"

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	UserID   int64
	Action   string
	Table    string
	Page     int
	PageSize int
}

// TimelineRow is one stored audit event.
type TimelineRow struct {
	ID          int64     `json:"id"`
	At          time.Time `json:"at"`
	UserID      *int64    `json:"user_id,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Table       string    `json:"table,omitempty"`
	IP          string    `json:"ip,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
