// Package claimpath parses claim path strings into structured blueprint
// references. Grammar: category(.assetType)?([index])?(.rest)?, where a
// rest of the form yearly_data.<4-digit-year>.<field> is decomposed into
// year and subfield, and tax_authority_data / fiscal_entity paths get
// category-specific post-processing.
package claimpath

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Categories the router dispatches on. Anything else falls through to the
// generic fallback.
const (
	CategoryAssets       = "assets"
	CategoryDebts        = "debts"
	CategoryTaxAuthority = "tax_authority_data"
	CategoryFiscalEntity = "fiscal_entity"
)

// Ref is a parsed claim path.
type Ref struct {
	Category  string
	AssetType model.AssetKind // only for assets.*
	Index     int             // element index, -1 when absent
	Year      string          // tax year, "" when absent
	Field     string          // field name or remaining verbatim path
	Subfield  string          // yearly-data field or fiscal-entity subfield
	Raw       string          // original path string
}

// HasIndex reports whether the path carried an explicit element index.
func (r Ref) HasIndex() bool { return r.Index >= 0 }

// Parse parses a claim path. A parse failure is non-fatal to the batch:
// the caller logs and drops the claim.
func Parse(path string) (Ref, error) {
	ref := Ref{Index: -1, Raw: path}

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ref, eris.New("claimpath: empty path")
	}

	segments := strings.Split(trimmed, ".")
	head, idx, err := splitIndex(segments[0])
	if err != nil {
		return ref, err
	}
	ref.Category = head
	ref.Index = idx
	segments = segments[1:]

	if ref.Category == CategoryAssets {
		if len(segments) == 0 {
			return ref, eris.Errorf("claimpath: %s: missing asset type", path)
		}
		kindSeg, idx, err := splitIndex(segments[0])
		if err != nil {
			return ref, err
		}
		kind := model.AssetKind(kindSeg)
		switch kind {
		case model.AssetBankSavings, model.AssetInvestments, model.AssetRealEstate, model.AssetOther:
			ref.AssetType = kind
		default:
			return ref, eris.Errorf("claimpath: %s: unknown asset type %q", path, kindSeg)
		}
		if idx >= 0 {
			ref.Index = idx
		}
		segments = segments[1:]
	}

	rest := strings.Join(segments, ".")
	if year, field, ok := splitYearlyData(segments); ok {
		ref.Year = year
		ref.Subfield = field
	} else {
		ref.Field = rest
	}

	switch ref.Category {
	case CategoryTaxAuthority:
		// tax_authority_data.<year>.<field path>
		if len(segments) < 2 || !isYear(segments[0]) {
			return ref, eris.Errorf("claimpath: %s: expected tax_authority_data.<year>.<field>", path)
		}
		ref.Year = segments[0]
		ref.Field = strings.Join(segments[1:], ".")
	case CategoryFiscalEntity:
		// fiscal_entity.<role>.<subfield> or fiscal_entity.<field>
		if len(segments) == 0 {
			return ref, eris.Errorf("claimpath: %s: missing fiscal_entity field", path)
		}
		ref.Field = segments[0]
		if len(segments) > 1 {
			ref.Subfield = strings.Join(segments[1:], ".")
		}
	}

	return ref, nil
}

// splitIndex splits a segment like "bank_savings[0]" into name and index.
// Index is -1 when the segment carries no brackets.
func splitIndex(segment string) (string, int, error) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, -1, nil
	}
	if !strings.HasSuffix(segment, "]") || open == 0 {
		return "", -1, eris.Errorf("claimpath: malformed index in %q", segment)
	}
	n, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil || n < 0 {
		return "", -1, eris.Errorf("claimpath: malformed index in %q", segment)
	}
	return segment[:open], n, nil
}

// splitYearlyData matches segments of the form yearly_data.<year>.<field>.
func splitYearlyData(segments []string) (year, field string, ok bool) {
	if len(segments) < 3 || segments[0] != "yearly_data" || !isYear(segments[1]) {
		return "", "", false
	}
	return segments[1], strings.Join(segments[2:], "."), true
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
