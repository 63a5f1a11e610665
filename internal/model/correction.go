package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// CorrectionType classifies a post-publication amendment.
type CorrectionType string

const (
	CorrectionFactualError  CorrectionType = "factual_error"
	CorrectionSourceError   CorrectionType = "source_error"
	CorrectionClarification CorrectionType = "clarification"
	CorrectionUpdate        CorrectionType = "update"
	CorrectionRetraction    CorrectionType = "retraction"
)

// Severity grades how serious a correction is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ParseCorrectionType validates a correction type string.
func ParseCorrectionType(s string) (CorrectionType, error) {
	switch t := CorrectionType(s); t {
	case CorrectionFactualError, CorrectionSourceError, CorrectionClarification,
		CorrectionUpdate, CorrectionRetraction:
		return t, nil
	}
	return "", eris.Errorf("model: unknown correction type %q", s)
}

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch sv := Severity(s); sv {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return sv, nil
	}
	return "", eris.Errorf("model: unknown severity %q", s)
}

// Correction is a post-publication amendment record. It is immutable once
// its public notice has been published.
type Correction struct {
	ID                string         `json:"id"`
	ArticleID         string         `json:"article_id"`
	Type              CorrectionType `json:"type"`
	Severity          Severity       `json:"severity"`
	Description       string         `json:"description"`
	SourceIDs         []string       `json:"source_ids,omitempty"`
	PublicDisclosure  bool           `json:"public_disclosure"`
	NoticePublishedAt *time.Time     `json:"notice_published_at,omitempty"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
}
