package model

// Debt is a liability record (mortgage, loan, credit line). Identity
// matching for debts is a weak substring heuristic over Description and
// Lender, so the fields stay free text.
type Debt struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id,omitempty"`
	Description string     `json:"description,omitempty"`
	Lender      string     `json:"lender,omitempty"`
	YearlyData  YearlyData `json:"yearly_data"`
}
