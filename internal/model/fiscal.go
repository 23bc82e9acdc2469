package model

// Person holds the identifying fields of the taxpayer or fiscal partner.
// Empty string means unset; fields are first-writer-wins during merges.
type Person struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	BSN         string `json:"bsn,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// FieldRef exposes the person's fields by claim subfield name.
func (p *Person) FieldRef(name string) *string {
	switch name {
	case "name":
		return &p.Name
	case "bsn":
		return &p.BSN
	case "date_of_birth":
		return &p.DateOfBirth
	default:
		return nil
	}
}

// FiscalEntity identifies the taxpayer and the optional fiscal partner.
type FiscalEntity struct {
	Taxpayer         Person `json:"taxpayer"`
	FiscalPartner    Person `json:"fiscal_partner"`
	HasFiscalPartner bool   `json:"has_fiscal_partner"`
}

// PersonByRole returns the person record for a fiscal_entity path segment,
// or nil for an unknown role.
func (e *FiscalEntity) PersonByRole(role string) *Person {
	switch role {
	case "taxpayer":
		return &e.Taxpayer
	case "fiscal_partner":
		return &e.FiscalPartner
	default:
		return nil
	}
}
