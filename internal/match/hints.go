// Package match resolves claim identity hints against the blueprint's
// existing asset and debt records.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/dossier-cli/internal/model"
)

var (
	ibanPattern     = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z]{4}\d{6,16}\b`)
	postcodePattern = regexp.MustCompile(`\b\d{4}\s?[A-Z]{2}\b`)
	// Street name followed by a house number, e.g. "Kerkstraat 12a".
	addressPattern = regexp.MustCompile(`\p{L}[\p{L} .'-]{2,40}\s\d{1,5}[a-zA-Z]?\b`)
)

// bankCodeNames maps Dutch IBAN bank codes to bank names.
var bankCodeNames = map[string]string{
	"ABNA": "ABN AMRO",
	"INGB": "ING",
	"RABO": "Rabobank",
	"SNSB": "SNS",
	"ASNB": "ASN Bank",
	"TRIO": "Triodos",
	"BUNQ": "bunq",
	"KNAB": "Knab",
}

// Hints are the identifying fragments derived from a claim's source
// snippet (and, for identity fields, its value).
type Hints struct {
	AccountTail string // last digits of a detected account number
	IBANPrefix  string // country + check digits + bank code
	BankName    string
	Address     string
	Postcode    string
}

// Empty reports whether the claim carried no identifying hints at all, in
// which case no match is possible and a new asset is always created.
func (h Hints) Empty() bool {
	return h.AccountTail == "" && h.IBANPrefix == "" && h.BankName == "" &&
		h.Address == "" && h.Postcode == ""
}

// ExtractHints derives identity hints from a claim. The snippet is the
// primary source; string claim values contribute when they carry an IBAN
// or address themselves.
func ExtractHints(c model.Claim) Hints {
	var h Hints

	text := c.SourceSnippet
	if s, ok := c.Value.(string); ok {
		text += " " + s
	}

	if iban := ibanPattern.FindString(strings.ToUpper(text)); iban != "" {
		h.AccountTail = iban[len(iban)-4:]
		h.IBANPrefix = iban[:8]
		h.BankName = bankCodeNames[iban[4:8]]
	}
	if h.BankName == "" {
		for _, name := range bankCodeNames {
			if containsFold(text, name) {
				h.BankName = name
				break
			}
		}
	}
	if pc := postcodePattern.FindString(strings.ToUpper(text)); pc != "" {
		h.Postcode = strings.ReplaceAll(pc, " ", "")
	}
	if addr := addressPattern.FindString(text); addr != "" {
		h.Address = strings.TrimSpace(addr)
	}

	return h
}

// containsFold reports case-insensitive substring containment.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// valueString renders a claim value the way audit records do.
func valueString(v any) string {
	return fmt.Sprintf("%v", v)
}
