package model

import "time"

// EventStatus represents the lifecycle state of a discovered event.
type EventStatus string

const (
	EventStatusDiscovered EventStatus = "discovered"
	EventStatusEvaluated  EventStatus = "evaluated"
	EventStatusApproved   EventStatus = "approved"
	EventStatusRejected   EventStatus = "rejected"
	EventStatusConverted  EventStatus = "converted"
)

// Terminal reports whether no further stage will touch the event.
func (s EventStatus) Terminal() bool {
	return s == EventStatusRejected || s == EventStatusConverted
}

// SubScores are the six newsworthiness inputs, each on a 0-100 scale.
type SubScores struct {
	Impact        float64 `json:"impact"`
	Timeliness    float64 `json:"timeliness"`
	Verifiability float64 `json:"verifiability"`
	Regional      float64 `json:"regional"`
	Conflict      float64 `json:"conflict"`
	Novelty       float64 `json:"novelty"`
}

// Event is a candidate news item discovered from an external feed.
type Event struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Summary      string      `json:"summary"`
	Category     string      `json:"category,omitempty"`
	Opinion      bool        `json:"opinion,omitempty"`
	URL          string      `json:"url,omitempty"`
	Sources      []string    `json:"sources,omitempty"`
	SubScores    SubScores   `json:"sub_scores"`
	FinalScore   *float64    `json:"final_score,omitempty"`
	Status       EventStatus `json:"status"`
	RejectReason string      `json:"reject_reason,omitempty"`
	TopicID      string      `json:"topic_id,omitempty"`
	DiscoveredAt time.Time   `json:"discovered_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
