package match

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Match reasons reported alongside a resolved asset.
const (
	ReasonAccountNumber = "account_number"
	ReasonIBAN          = "iban"
	ReasonAddress       = "address"
)

// Match is a resolved asset with the rule that found it. Confidence is
// fixed per rule; this is a cascade, not a similarity ranking.
type Match struct {
	Asset      model.Asset
	Index      int
	Confidence float64
	Reason     string
}

// FindAsset scans the existing assets of the claim's kind and returns the
// first match, trying rules in priority order. Returns nil when the hints
// identify nothing.
func FindAsset(assets *model.AssetCollections, kind model.AssetKind, h Hints) *Match {
	if h.Empty() {
		return nil
	}

	var m *Match
	switch kind {
	case model.AssetBankSavings:
		m = findBankAsset(assets.BankSavings, h)
	case model.AssetRealEstate:
		m = findRealEstateAsset(assets.RealEstate, h)
	default:
		// Investments and free-text "other" assets carry no matchable
		// identity; claims address them by index or create new records.
		return nil
	}

	if m != nil {
		zap.L().Debug("match: asset resolved",
			zap.String("kind", string(kind)),
			zap.String("asset_id", m.Asset.Base().ID),
			zap.String("reason", m.Reason),
			zap.Float64("confidence", m.Confidence),
		)
	}
	return m
}

func findBankAsset(assets []model.BankAsset, h Hints) *Match {
	// Pass 1: account-number suffix against the masked account.
	if h.AccountTail != "" {
		for i := range assets {
			if strings.HasSuffix(assets[i].AccountMasked, h.AccountTail) {
				return &Match{Asset: &assets[i], Index: i, Confidence: 0.95, Reason: ReasonAccountNumber}
			}
		}
	}

	// Pass 2: same bank and the masked account contains the IBAN prefix.
	if h.BankName != "" && h.IBANPrefix != "" {
		for i := range assets {
			if strings.EqualFold(assets[i].BankName, h.BankName) &&
				strings.Contains(assets[i].AccountMasked, h.IBANPrefix) {
				return &Match{Asset: &assets[i], Index: i, Confidence: 0.85, Reason: ReasonIBAN}
			}
		}
	}

	return nil
}

func findRealEstateAsset(assets []model.RealEstateAsset, h Hints) *Match {
	// Pass 1: normalized address equality.
	if h.Address != "" {
		want := NormalizeAddress(h.Address)
		for i := range assets {
			if NormalizeAddress(assets[i].Address) == want {
				return &Match{Asset: &assets[i], Index: i, Confidence: 0.90, Reason: ReasonAddress}
			}
		}
	}

	// Pass 2: postcode equality.
	if h.Postcode != "" {
		want := normalizePostcode(h.Postcode)
		for i := range assets {
			if normalizePostcode(assets[i].Postcode) == want && want != "" {
				return &Match{Asset: &assets[i], Index: i, Confidence: 0.85, Reason: ReasonAddress}
			}
		}
	}

	return nil
}

// CreateAsset synthesizes a new asset of the kind from whatever hints are
// available, with empty yearly data, and appends it to the blueprint.
func CreateAsset(bp *model.Blueprint, kind model.AssetKind, h Hints, ownerID string) model.Asset {
	base := model.AssetBase{
		ID:         bp.NextAssetID(kind),
		OwnerID:    ownerID,
		YearlyData: model.YearlyData{},
	}

	var created model.Asset
	switch kind {
	case model.AssetBankSavings:
		a := model.BankAsset{AssetBase: base, BankName: h.BankName}
		if h.AccountTail != "" {
			a.AccountMasked = "****" + h.AccountTail
		}
		if h.IBANPrefix != "" && h.AccountTail != "" {
			a.AccountMasked = h.IBANPrefix + "****" + h.AccountTail
		}
		bp.Assets.BankSavings = append(bp.Assets.BankSavings, a)
		created = &bp.Assets.BankSavings[len(bp.Assets.BankSavings)-1]
	case model.AssetInvestments:
		a := model.InvestmentAsset{AssetBase: base, Institution: h.BankName}
		if h.AccountTail != "" {
			a.AccountMasked = "****" + h.AccountTail
		}
		bp.Assets.Investments = append(bp.Assets.Investments, a)
		created = &bp.Assets.Investments[len(bp.Assets.Investments)-1]
	case model.AssetRealEstate:
		a := model.RealEstateAsset{AssetBase: base, Address: h.Address, Postcode: normalizePostcode(h.Postcode)}
		bp.Assets.RealEstate = append(bp.Assets.RealEstate, a)
		created = &bp.Assets.RealEstate[len(bp.Assets.RealEstate)-1]
	default:
		a := model.OtherAsset{AssetBase: base}
		bp.Assets.Other = append(bp.Assets.Other, a)
		created = &bp.Assets.Other[len(bp.Assets.Other)-1]
	}

	zap.L().Info("match: created new asset",
		zap.String("kind", string(kind)),
		zap.String("asset_id", created.Base().ID),
	)
	return created
}
