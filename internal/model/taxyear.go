package model

import "github.com/shopspring/decimal"

// PersonAllocation holds the per-person aggregate fields for one tax year.
type PersonAllocation map[string]decimal.Decimal

// TaxYearData is the tax-authority aggregate record for one year:
// household totals plus per-person allocations. These are plain numbers,
// not DataPoints — rejected updates here are dropped without a conflict
// record (a known asymmetry kept from the original design).
type TaxYearData struct {
	Year            string                      `json:"year"`
	SourceDocID     string                      `json:"source_doc_id,omitempty"`
	HouseholdTotals map[string]decimal.Decimal  `json:"household_totals"`
	PerPerson       map[string]PersonAllocation `json:"per_person"`
}

// householdTotalFields are the aggregate fields seeded to zero when a tax
// year record is first touched.
var householdTotalFields = []string{
	"total_assets_gross",
	"total_debts",
	"exemption_applied",
	"taxable_base",
}

// personAllocationFields are the per-person fields seeded to zero when an
// allocation is first touched.
var personAllocationFields = []string{
	"allocated_assets",
	"allocated_debts",
	"taxable_base",
}

// NewTaxYearData creates a year record seeded with the source document and
// zeroed household totals.
func NewTaxYearData(year, sourceDocID string) *TaxYearData {
	totals := make(map[string]decimal.Decimal, len(householdTotalFields))
	for _, f := range householdTotalFields {
		totals[f] = decimal.Zero
	}
	return &TaxYearData{
		Year:            year,
		SourceDocID:     sourceDocID,
		HouseholdTotals: totals,
		PerPerson:       make(map[string]PersonAllocation),
	}
}

// Allocation returns the allocation map for a person, creating it with
// zeroed default fields on first touch.
func (t *TaxYearData) Allocation(personID string) PersonAllocation {
	if t.PerPerson == nil {
		t.PerPerson = make(map[string]PersonAllocation)
	}
	alloc, ok := t.PerPerson[personID]
	if !ok {
		alloc = make(PersonAllocation, len(personAllocationFields))
		for _, f := range personAllocationFields {
			alloc[f] = decimal.Zero
		}
		t.PerPerson[personID] = alloc
	}
	return alloc
}
