// Package authority ranks document types by evidentiary trust and decides
// whether incoming values may replace existing ones.
package authority

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Ranking maps document types to an authority score. It is injected into
// the resolver as configuration so alternate rankings are testable.
type Ranking struct {
	Ranks              map[model.DocumentType]int `yaml:"ranks"`
	AggregateThreshold int                        `yaml:"aggregate_threshold"`
}

// Default returns the built-in ranking: final assessment > provisional
// assessment > tax return > property valuation > bank/investment annual
// statements > mortgage statement > other. Unknown types rank 0.
func Default() Ranking {
	return Ranking{
		Ranks: map[model.DocumentType]int{
			model.DocTypeAanslagDefinitief:      100,
			model.DocTypeAanslagVoorlopig:       90,
			model.DocTypeAangifte:               80,
			model.DocTypeWOZBeschikking:         70,
			model.DocTypeJaaropgaveBank:         60,
			model.DocTypeJaaropgaveBelegging:    60,
			model.DocTypeHypotheekJaaroverzicht: 50,
			model.DocTypeOther:                  10,
		},
		AggregateThreshold: 80,
	}
}

// Load reads a ranking override file. Entries missing from the file keep
// their default rank.
func Load(path string) (Ranking, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ranking{}, eris.Wrapf(err, "authority: read ranking %s", path)
	}

	// The YAML has a top-level "authority" key.
	var wrapper struct {
		Authority Ranking `yaml:"authority"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Ranking{}, eris.Wrap(err, "authority: parse ranking")
	}

	r := Default()
	if wrapper.Authority.AggregateThreshold > 0 {
		r.AggregateThreshold = wrapper.Authority.AggregateThreshold
	}
	for docType, rank := range wrapper.Authority.Ranks {
		r.Ranks[docType] = rank
	}
	return r, nil
}

// Rank returns the authority score for a document type; unknown types
// rank 0.
func (r Ranking) Rank(t model.DocumentType) int {
	return r.Ranks[t]
}

// MeetsAggregateThreshold reports whether a document type is trusted
// enough to overwrite simple aggregate fields.
func (r Ranking) MeetsAggregateThreshold(t model.DocumentType) bool {
	return r.Rank(t) >= r.AggregateThreshold
}
