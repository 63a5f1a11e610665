package model

import "time"

// VerificationStatus tracks source verification of a topic.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationInProgress VerificationStatus = "in_progress"
	VerificationVerified   VerificationStatus = "verified"
	VerificationPartial    VerificationStatus = "partial"
	VerificationFailed     VerificationStatus = "failed"
)

// CredibilityTier is the banded classification of a source's credibility score.
type CredibilityTier int

const (
	TierUnknown CredibilityTier = iota
	Tier1                       // 90-100
	Tier2                       // 75-89
	Tier3                       // 50-74
	Tier4                       // below 50
)

func (t CredibilityTier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	case Tier4:
		return "tier4"
	default:
		return "unknown"
	}
}

// TopicSource is a source attached to a topic during verification.
type TopicSource struct {
	SourceID    string          `json:"source_id,omitempty"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Domain      string          `json:"domain"`
	Credibility float64         `json:"credibility"`
	Tier        CredibilityTier `json:"tier"`
	Academic    bool            `json:"academic,omitempty"`
}

// Attribution maps an inline citation key (S1, S2, ...) to a verified source.
type Attribution struct {
	Key      string `json:"key"`
	SourceID string `json:"source_id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Claim    string `json:"claim,omitempty"`
}

// Topic is an approved event undergoing research and verification.
type Topic struct {
	ID                 string             `json:"id"`
	EventID            string             `json:"event_id"`
	Headline           string             `json:"headline"`
	Summary            string             `json:"summary"`
	Category           string             `json:"category,omitempty"`
	Opinion            bool               `json:"opinion,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Sources            []TopicSource      `json:"sources,omitempty"`
	CredibleCount      int                `json:"credible_count"`
	AcademicCount      int                `json:"academic_count"`
	Shortfall          string             `json:"shortfall,omitempty"`
	AttributionPlan    []Attribution      `json:"attribution_plan,omitempty"`
	ManualReason       string             `json:"manual_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
