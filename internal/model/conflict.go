package model

import "encoding/json"

const (
	// ConflictStatusOpen marks a conflict awaiting operator resolution.
	ConflictStatusOpen = "OPEN"
	// ConflictStatusResolved marks a conflict that has been resolved exactly once.
	ConflictStatusResolved = "RESOLVED"
)

// Conflict is a divergent row version between two replicas as listed by the
// backend conflict detector.
type Conflict struct {
	ConflictID int64  `json:"conflict_id"`
	TableName  string `json:"table_name"`
	PKValue    string `json:"pk_value"`
	SourceDB   string `json:"source_db"`
	TargetDB   string `json:"target_db"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// IsOpen reports whether the conflict still awaits resolution.
func (conflict Conflict) IsOpen() bool {
	return conflict.Status == ConflictStatusOpen
}

// ConflictDetail extends Conflict with the competing row payloads shown on the
// detail view.
type ConflictDetail struct {
	Conflict
	SourceRowData map[string]any `json:"source_row_data"`
	TargetRowData map[string]any `json:"target_row_data"`
	WinnerDB      string         `json:"winner_db,omitempty"`
	ResolvedBy    string         `json:"resolved_by,omitempty"`
	ResolvedAt    string         `json:"resolved_at,omitempty"`
}

// ResolutionResult is the backend acknowledgement of a winner-replica or
// manual-patch resolution.
type ResolutionResult struct {
	OK         bool            `json:"ok"`
	Resolved   int64           `json:"resolved"`
	WinnerDB   string          `json:"winner_db,omitempty"`
	AppliedRow json.RawMessage `json:"applied_row,omitempty"`
}

// ConflictSnapshot is the conflict panel of the dashboard overview payload.
type ConflictSnapshot struct {
	Items        []Conflict `json:"items"`
	OpenCount    int64      `json:"open_count"`
	LastResolved *string    `json:"last_resolved"`
}
