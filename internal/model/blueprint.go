package model

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
)

// Blueprint is the canonical, versioned financial record for one case.
// MergeConflicts and DocumentContributions are strictly append-only; no
// element is mutated or removed after creation.
type Blueprint struct {
	Assets                AssetCollections        `json:"assets"`
	Debts                 []Debt                  `json:"debts"`
	TaxAuthorityData      map[string]*TaxYearData `json:"tax_authority_data"`
	FiscalEntity          FiscalEntity            `json:"fiscal_entity"`
	ManualOverrides       map[string]any          `json:"manual_overrides"`
	DocumentContributions []ContributionRecord    `json:"document_contributions"`
	MergeConflicts        []ConflictRecord        `json:"merge_conflicts"`
	SourceDocuments       []SourceDocument        `json:"source_documents_registry"`
}

// NewBlueprint creates an empty blueprint in its documented shape.
func NewBlueprint() *Blueprint {
	return &Blueprint{
		TaxAuthorityData: make(map[string]*TaxYearData),
		ManualOverrides:  make(map[string]any),
		FiscalEntity: FiscalEntity{
			Taxpayer:      Person{ID: "taxpayer"},
			FiscalPartner: Person{ID: "partner"},
		},
	}
}

// Validate checks the structural invariants a merge call relies on.
// A failure here means the blueprint was never initialized to its
// documented shape and the merge must not proceed.
func (b *Blueprint) Validate() error {
	if b == nil {
		return eris.New("blueprint: nil")
	}
	if b.TaxAuthorityData == nil {
		return eris.New("blueprint: tax_authority_data map not initialized")
	}
	if b.ManualOverrides == nil {
		return eris.New("blueprint: manual_overrides map not initialized")
	}
	return nil
}

// Clone deep-copies the blueprint via a JSON round-trip so a merge call
// never mutates caller-owned state. Decimal amounts survive losslessly.
func (b *Blueprint) Clone() (*Blueprint, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "blueprint: marshal for clone")
	}
	var out Blueprint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "blueprint: unmarshal clone")
	}
	if out.TaxAuthorityData == nil {
		out.TaxAuthorityData = make(map[string]*TaxYearData)
	}
	if out.ManualOverrides == nil {
		out.ManualOverrides = make(map[string]any)
	}
	return &out, nil
}

// NextAssetID returns the next sequential id for the kind, e.g.
// banksavings_3. Collections are append-only, so length+1 is stable.
func (b *Blueprint) NextAssetID(kind AssetKind) string {
	return fmt.Sprintf("%s_%d", kind.IDPrefix(), b.Assets.Count(kind)+1)
}

// NextDebtID returns the next sequential debt id.
func (b *Blueprint) NextDebtID() string {
	return fmt.Sprintf("debt_%d", len(b.Debts)+1)
}

// HasSourceDocument reports whether the document is already registered.
func (b *Blueprint) HasSourceDocument(documentID string) bool {
	for _, d := range b.SourceDocuments {
		if d.DocumentID == documentID {
			return true
		}
	}
	return false
}
