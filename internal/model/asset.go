package model

import "github.com/shopspring/decimal"

// AssetKind is the closed set of asset variants the blueprint tracks.
type AssetKind string

const (
	AssetBankSavings AssetKind = "bank_savings"
	AssetInvestments AssetKind = "investments"
	AssetRealEstate  AssetKind = "real_estate"
	AssetOther       AssetKind = "other"
)

// IDPrefix returns the stable id prefix for the kind, e.g. "banksavings"
// for ids like banksavings_3.
func (k AssetKind) IDPrefix() string {
	switch k {
	case AssetBankSavings:
		return "banksavings"
	case AssetInvestments:
		return "investments"
	case AssetRealEstate:
		return "realestate"
	default:
		return "other"
	}
}

// DataPoint is the atomic provenance-carrying value. Every numeric fact
// sourced from a document is stored as a DataPoint, never a bare number.
type DataPoint struct {
	Amount        decimal.Decimal `json:"amount"`
	SourceDocID   string          `json:"source_doc_id"`
	SourceType    DocumentType    `json:"source_type"`
	Confidence    float64         `json:"confidence"`
	SourceSnippet string          `json:"source_snippet,omitempty"`
}

// YearlyData maps tax year to field name to DataPoint,
// e.g. yearly_data["2023"]["value_jan_1"].
type YearlyData map[string]map[string]DataPoint

// Set stores a DataPoint, creating the year bucket on first touch.
func (y YearlyData) Set(year, field string, dp DataPoint) {
	if y[year] == nil {
		y[year] = make(map[string]DataPoint)
	}
	y[year][field] = dp
}

// Get returns the DataPoint at year/field, or nil when absent.
func (y YearlyData) Get(year, field string) *DataPoint {
	if fields, ok := y[year]; ok {
		if dp, ok := fields[field]; ok {
			return &dp
		}
	}
	return nil
}

// AssetBase carries the fields shared by all asset variants. OwnerID is a
// back-reference to a person in the fiscal entity, not an ownership claim.
type AssetBase struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id,omitempty"`
	YearlyData YearlyData `json:"yearly_data"`
}

// Asset is the common view over the four asset variants. FieldRef exposes
// the variant's simple identity fields by claim field name so the router
// can apply first-writer-wins updates without reflection.
type Asset interface {
	Base() *AssetBase
	Kind() AssetKind
	FieldRef(name string) *string
}

// BankAsset is a bank or savings account.
type BankAsset struct {
	AssetBase
	AccountMasked string `json:"account_masked,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

func (a *BankAsset) Base() *AssetBase { return &a.AssetBase }
func (a *BankAsset) Kind() AssetKind  { return AssetBankSavings }

func (a *BankAsset) FieldRef(name string) *string {
	switch name {
	case "account_masked", "account_number":
		return &a.AccountMasked
	case "bank_name":
		return &a.BankName
	case "owner_id":
		return &a.OwnerID
	default:
		return nil
	}
}

// InvestmentAsset is a brokerage or investment account.
type InvestmentAsset struct {
	AssetBase
	Institution   string `json:"institution,omitempty"`
	AccountMasked string `json:"account_masked,omitempty"`
}

func (a *InvestmentAsset) Base() *AssetBase { return &a.AssetBase }
func (a *InvestmentAsset) Kind() AssetKind  { return AssetInvestments }

func (a *InvestmentAsset) FieldRef(name string) *string {
	switch name {
	case "institution":
		return &a.Institution
	case "account_masked", "account_number":
		return &a.AccountMasked
	case "owner_id":
		return &a.OwnerID
	default:
		return nil
	}
}

// RealEstateAsset is a property, identified by address and postcode.
type RealEstateAsset struct {
	AssetBase
	Address  string `json:"address,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

func (a *RealEstateAsset) Base() *AssetBase { return &a.AssetBase }
func (a *RealEstateAsset) Kind() AssetKind  { return AssetRealEstate }

func (a *RealEstateAsset) FieldRef(name string) *string {
	switch name {
	case "address":
		return &a.Address
	case "postcode":
		return &a.Postcode
	case "owner_id":
		return &a.OwnerID
	default:
		return nil
	}
}

// OtherAsset covers free-text assets that carry no structured identity.
type OtherAsset struct {
	AssetBase
	Description string `json:"description,omitempty"`
}

func (a *OtherAsset) Base() *AssetBase { return &a.AssetBase }
func (a *OtherAsset) Kind() AssetKind  { return AssetOther }

func (a *OtherAsset) FieldRef(name string) *string {
	switch name {
	case "description":
		return &a.Description
	case "owner_id":
		return &a.OwnerID
	default:
		return nil
	}
}

// AssetCollections holds the four ordered, append-only asset sequences.
// Slice order is creation order; assets are never deleted.
type AssetCollections struct {
	BankSavings []BankAsset       `json:"bank_savings"`
	Investments []InvestmentAsset `json:"investments"`
	RealEstate  []RealEstateAsset `json:"real_estate"`
	Other       []OtherAsset      `json:"other"`
}

// Count returns how many assets of the kind exist.
func (c *AssetCollections) Count(kind AssetKind) int {
	switch kind {
	case AssetBankSavings:
		return len(c.BankSavings)
	case AssetInvestments:
		return len(c.Investments)
	case AssetRealEstate:
		return len(c.RealEstate)
	case AssetOther:
		return len(c.Other)
	default:
		return 0
	}
}

// At returns the asset at index for the kind, or nil when out of range.
func (c *AssetCollections) At(kind AssetKind, index int) Asset {
	if index < 0 {
		return nil
	}
	switch kind {
	case AssetBankSavings:
		if index < len(c.BankSavings) {
			return &c.BankSavings[index]
		}
	case AssetInvestments:
		if index < len(c.Investments) {
			return &c.Investments[index]
		}
	case AssetRealEstate:
		if index < len(c.RealEstate) {
			return &c.RealEstate[index]
		}
	case AssetOther:
		if index < len(c.Other) {
			return &c.Other[index]
		}
	}
	return nil
}
