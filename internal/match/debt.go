package match

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

// FindDebt matches an existing debt by substring containment of the
// claim's snippet against the debt's description or lender. This is a
// deliberately weak heuristic kept as-is; no confidence is reported.
func FindDebt(debts []model.Debt, snippet string) (int, bool) {
	if strings.TrimSpace(snippet) == "" {
		return -1, false
	}
	for i := range debts {
		if containsFold(snippet, debts[i].Description) || containsFold(snippet, debts[i].Lender) {
			zap.L().Debug("match: debt resolved by snippet containment",
				zap.String("debt_id", debts[i].ID),
			)
			return i, true
		}
	}
	return -1, false
}

// CreateDebt appends a new debt seeded from the claim snippet.
func CreateDebt(bp *model.Blueprint, snippet string, ownerID string) *model.Debt {
	desc := strings.TrimSpace(snippet)
	if len(desc) > 120 {
		desc = desc[:120]
	}
	d := model.Debt{
		ID:          bp.NextDebtID(),
		OwnerID:     ownerID,
		Description: desc,
		YearlyData:  model.YearlyData{},
	}
	bp.Debts = append(bp.Debts, d)
	zap.L().Info("match: created new debt", zap.String("debt_id", d.ID))
	return &bp.Debts[len(bp.Debts)-1]
}
