package model

import "time"

// DocumentType tags the kind of financial document an extraction came from.
type DocumentType string

const (
	DocTypeAanslagDefinitief      DocumentType = "aanslag_definitief"
	DocTypeAanslagVoorlopig       DocumentType = "aanslag_voorlopig"
	DocTypeAangifte               DocumentType = "aangifte"
	DocTypeWOZBeschikking         DocumentType = "woz_beschikking"
	DocTypeJaaropgaveBank         DocumentType = "jaaropgave_bank"
	DocTypeJaaropgaveBelegging    DocumentType = "jaaropgave_belegging"
	DocTypeHypotheekJaaroverzicht DocumentType = "hypotheek_jaaroverzicht"
	DocTypeOther                  DocumentType = "other"
)

// PersonRole identifies which person in the fiscal entity a document belongs to.
type PersonRole string

const (
	PersonTaxpayer PersonRole = "taxpayer"
	PersonPartner  PersonRole = "partner"
	PersonUnknown  PersonRole = "unknown"
)

// Claim is one atomic extracted fact: a blueprint path plus the value the
// extraction service read at that location.
type Claim struct {
	Path          string  `json:"path"`
	Value         any     `json:"value"`
	Confidence    float64 `json:"confidence"`
	SourceSnippet string  `json:"source_snippet,omitempty"`
}

// DocumentExtraction is the input contract produced by the extraction
// service for one scanned document.
type DocumentExtraction struct {
	DocumentID        string       `json:"document_id"`
	DetectedType      DocumentType `json:"detected_type"`
	DetectedPerson    PersonRole   `json:"detected_person,omitempty"`
	DetectedTaxYears  []string     `json:"detected_tax_years,omitempty"`
	ExtractionVersion string       `json:"extraction_version,omitempty"`
	ExtractedAt       time.Time    `json:"extracted_at"`
	Claims            []Claim      `json:"claims"`
}

// SourceDocument is a registry entry for a document that has been merged at
// least once. Readable is false when the detected type is the catch-all
// "other" category.
type SourceDocument struct {
	DocumentID   string       `json:"document_id"`
	DocumentType DocumentType `json:"document_type"`
	TaxYears     []string     `json:"tax_years,omitempty"`
	Person       PersonRole   `json:"person,omitempty"`
	Readable     bool         `json:"readable"`
}
