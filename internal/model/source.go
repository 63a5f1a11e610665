package model

import "time"

// Source is a named outlet with a credibility score on a 0-100 scale.
type Source struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	Credibility float64   `json:"credibility"`
	Academic    bool      `json:"academic,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReliabilityEntry is one append-only row of a source's reliability log.
// RequestedDelta is what the correction asked for; AppliedDelta is what
// actually moved the score after clamping.
type ReliabilityEntry struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"source_id"`
	CorrectionID   string    `json:"correction_id"`
	RequestedDelta float64   `json:"requested_delta"`
	AppliedDelta   float64   `json:"applied_delta"`
	OldScore       float64   `json:"old_score"`
	NewScore       float64   `json:"new_score"`
	CreatedAt      time.Time `json:"created_at"`
}
