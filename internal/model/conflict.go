package model

import "time"

// ResolutionReason classifies how a value conflict was resolved.
type ResolutionReason string

const (
	ReasonManualOverride   ResolutionReason = "manual_override"
	ReasonHigherAuthority  ResolutionReason = "higher_authority"
	ReasonHigherConfidence ResolutionReason = "higher_confidence"
	ReasonLowerConfidence  ResolutionReason = "lower_confidence"
)

// ConflictRecord is an immutable audit entry for one resolved value
// conflict. NeedsReview is false only for higher_authority resolutions.
type ConflictRecord struct {
	ID                  string           `json:"id"`
	Path                string           `json:"path"`
	KeptValue           string           `json:"kept_value"`
	KeptSourceDocID     string           `json:"kept_source_doc_id,omitempty"`
	KeptConfidence      float64          `json:"kept_confidence"`
	RejectedValue       string           `json:"rejected_value"`
	RejectedSourceDocID string           `json:"rejected_source_doc_id"`
	RejectedConfidence  float64          `json:"rejected_confidence"`
	ResolutionReason    ResolutionReason `json:"resolution_reason"`
	OccurredAt          time.Time        `json:"occurred_at"`
	NeedsReview         bool             `json:"needs_review"`
}

// ContributionRecord lists the field paths one document extraction
// actually wrote. One entry is appended per merge call.
type ContributionRecord struct {
	DocumentID   string       `json:"document_id"`
	DocumentType DocumentType `json:"document_type"`
	Paths        []string     `json:"paths"`
	MergedAt     time.Time    `json:"merged_at"`
}

// MergeStats are the per-call summary counters returned to the caller.
// They are not persisted state.
type MergeStats struct {
	ValuesAdded       int `json:"values_added"`
	ValuesUpdated     int `json:"values_updated"`
	ValuesSkipped     int `json:"values_skipped"`
	ConflictsDetected int `json:"conflicts_detected"`
}
