package merge

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/claimpath"
	"github.com/sells-group/dossier-cli/internal/match"
	"github.com/sells-group/dossier-cli/internal/model"
)

// debtYearlyFields is the allow-list of yearly numeric debt fields.
var debtYearlyFields = map[string]bool{
	"balance_jan_1":  true,
	"balance_dec_31": true,
	"interest_paid":  true,
}

// route dispatches one parsed claim to its category handler. Unrecognized
// categories are logged and dropped without mutation.
func (e *Engine) route(s *mergeState, ref claimpath.Ref, claim model.Claim) {
	switch ref.Category {
	case claimpath.CategoryAssets:
		e.handleAsset(s, ref, claim)
	case claimpath.CategoryDebts:
		e.handleDebt(s, ref, claim)
	case claimpath.CategoryTaxAuthority:
		e.handleTaxAuthority(s, ref, claim)
	case claimpath.CategoryFiscalEntity:
		e.handleFiscalEntity(s, ref, claim)
	default:
		s.skip("unrecognized claim category", claim.Path)
	}
}

// skip logs a dropped claim and counts it as skipped.
func (s *mergeState) skip(reason, path string) {
	zap.L().Warn("merge: claim skipped",
		zap.String("document_id", s.extraction.DocumentID),
		zap.String("path", path),
		zap.String("reason", reason),
	)
	s.stats.ValuesSkipped++
}

// resolveAsset finds or creates the asset a claim addresses. Extraction
// indexes are document-local, so an index is only a within-batch handle:
// the first claim for a handle resolves by identity hints (or creates),
// later claims reuse the resolved blueprint slot.
func (s *mergeState) resolveAsset(ref claimpath.Ref, claim model.Claim) (model.Asset, int) {
	if ref.HasIndex() {
		if idx, ok := s.assetByRef[assetRefKey{ref.AssetType, ref.Index}]; ok {
			return s.bp.Assets.At(ref.AssetType, idx), idx
		}
	}

	hints := match.ExtractHints(claim)
	var idx int
	if m := match.FindAsset(&s.bp.Assets, ref.AssetType, hints); m != nil {
		idx = m.Index
	} else {
		match.CreateAsset(s.bp, ref.AssetType, hints, ownerID(s.extraction.DetectedPerson))
		idx = s.bp.Assets.Count(ref.AssetType) - 1
	}

	if ref.HasIndex() {
		s.assetByRef[assetRefKey{ref.AssetType, ref.Index}] = idx
	}
	return s.bp.Assets.At(ref.AssetType, idx), idx
}

func (e *Engine) handleAsset(s *mergeState, ref claimpath.Ref, claim model.Claim) {
	asset, idx := s.resolveAsset(ref, claim)

	if ref.Year != "" {
		amount, ok := toDecimal(claim.Value)
		if !ok {
			s.skip("non-numeric yearly value", claim.Path)
			return
		}
		path := fmt.Sprintf("assets.%s[%d].yearly_data.%s.%s", ref.AssetType, idx, ref.Year, ref.Subfield)
		incoming := model.DataPoint{
			Amount:        amount,
			SourceDocID:   s.extraction.DocumentID,
			SourceType:    s.extraction.DetectedType,
			Confidence:    claim.Confidence,
			SourceSnippet: claim.SourceSnippet,
		}

		base := asset.Base()
		if base.YearlyData == nil {
			base.YearlyData = model.YearlyData{}
		}
		existing := base.YearlyData.Get(ref.Year, ref.Subfield)

		outcome := s.resolver.ResolveDataPoint(path, existing, incoming)
		s.recordConflict(outcome.Conflict)
		if !outcome.Accept {
			s.stats.ValuesSkipped++
			return
		}
		base.YearlyData.Set(ref.Year, ref.Subfield, incoming)
		s.wrote(path)
		if existing == nil {
			s.stats.ValuesAdded++
		} else {
			s.stats.ValuesUpdated++
		}
		return
	}

	// Simple identity fields are first-writer-wins and never contested.
	fieldRef := asset.FieldRef(ref.Field)
	if fieldRef == nil {
		s.skip("unknown asset field", claim.Path)
		return
	}
	if *fieldRef != "" {
		s.stats.ValuesSkipped++
		return
	}
	*fieldRef = valueString(claim.Value)
	s.wrote(fmt.Sprintf("assets.%s[%d].%s", ref.AssetType, idx, ref.Field))
	s.stats.ValuesAdded++
}

// resolveDebt finds or creates the debt a claim addresses, mirroring the
// asset handle logic with the weaker snippet-containment matcher.
func (s *mergeState) resolveDebt(ref claimpath.Ref, claim model.Claim) int {
	if ref.HasIndex() {
		if idx, ok := s.debtByIndex[ref.Index]; ok {
			return idx
		}
	}

	idx, ok := match.FindDebt(s.bp.Debts, claim.SourceSnippet)
	if !ok {
		match.CreateDebt(s.bp, claim.SourceSnippet, ownerID(s.extraction.DetectedPerson))
		idx = len(s.bp.Debts) - 1
	}

	if ref.HasIndex() {
		s.debtByIndex[ref.Index] = idx
	}
	return idx
}

func (e *Engine) handleDebt(s *mergeState, ref claimpath.Ref, claim model.Claim) {
	if ref.Year == "" {
		s.skip("debt field outside yearly allow-list", claim.Path)
		return
	}
	if !debtYearlyFields[ref.Subfield] {
		s.skip("debt field outside yearly allow-list", claim.Path)
		return
	}
	amount, ok := toDecimal(claim.Value)
	if !ok {
		s.skip("non-numeric yearly value", claim.Path)
		return
	}

	idx := s.resolveDebt(ref, claim)
	debt := &s.bp.Debts[idx]
	if debt.YearlyData == nil {
		debt.YearlyData = model.YearlyData{}
	}

	path := fmt.Sprintf("debts[%d].yearly_data.%s.%s", idx, ref.Year, ref.Subfield)
	incoming := model.DataPoint{
		Amount:        amount,
		SourceDocID:   s.extraction.DocumentID,
		SourceType:    s.extraction.DetectedType,
		Confidence:    claim.Confidence,
		SourceSnippet: claim.SourceSnippet,
	}
	existing := debt.YearlyData.Get(ref.Year, ref.Subfield)

	outcome := s.resolver.ResolveDataPoint(path, existing, incoming)
	s.recordConflict(outcome.Conflict)
	if !outcome.Accept {
		s.stats.ValuesSkipped++
		return
	}
	debt.YearlyData.Set(ref.Year, ref.Subfield, incoming)
	s.wrote(path)
	if existing == nil {
		s.stats.ValuesAdded++
	} else {
		s.stats.ValuesUpdated++
	}
}

// taxYear returns the year's record, creating it on first accepted write.
func (s *mergeState) taxYear(year string) *model.TaxYearData {
	ty, ok := s.bp.TaxAuthorityData[year]
	if !ok || ty == nil {
		ty = model.NewTaxYearData(year, s.extraction.DocumentID)
		s.bp.TaxAuthorityData[year] = ty
	}
	return ty
}

func (e *Engine) handleTaxAuthority(s *mergeState, ref claimpath.Ref, claim model.Claim) {
	amount, numeric := toDecimal(claim.Value)
	if !numeric {
		s.skip("non-numeric aggregate value", claim.Path)
		return
	}

	if sub, found := strings.CutPrefix(ref.Field, "household_totals."); found {
		path := fmt.Sprintf("tax_authority_data.%s.household_totals.%s", ref.Year, sub)
		var existing decimal.Decimal
		var set bool
		if ty, ok := s.bp.TaxAuthorityData[ref.Year]; ok && ty != nil {
			existing, set = ty.HouseholdTotals[sub]
		}
		// Resubmitting the value already held changes nothing.
		if set && existing.Equal(amount) {
			s.stats.ValuesSkipped++
			return
		}
		if !s.resolver.ResolveAggregate(path, existing, set, s.extraction.DetectedType) {
			// Aggregates are lower-stakes: rejected updates are dropped
			// without a conflict record.
			s.stats.ValuesSkipped++
			return
		}
		s.taxYear(ref.Year).HouseholdTotals[sub] = amount
		s.wrote(path)
		if !set || existing.IsZero() {
			s.stats.ValuesAdded++
		} else {
			s.stats.ValuesUpdated++
		}
		return
	}

	if rest, found := strings.CutPrefix(ref.Field, "per_person."); found {
		personID, sub, ok := strings.Cut(rest, ".")
		if !ok || personID == "" || sub == "" {
			s.skip("malformed per-person aggregate path", claim.Path)
			return
		}
		path := fmt.Sprintf("tax_authority_data.%s.per_person.%s.%s", ref.Year, personID, sub)
		var existing decimal.Decimal
		var set bool
		if ty, ok := s.bp.TaxAuthorityData[ref.Year]; ok && ty != nil {
			if alloc, ok := ty.PerPerson[personID]; ok {
				existing, set = alloc[sub]
			}
		}
		if set && existing.Equal(amount) {
			s.stats.ValuesSkipped++
			return
		}
		if !s.resolver.ResolveAggregate(path, existing, set, s.extraction.DetectedType) {
			s.stats.ValuesSkipped++
			return
		}
		s.taxYear(ref.Year).Allocation(personID)[sub] = amount
		s.wrote(path)
		if !set || existing.IsZero() {
			s.stats.ValuesAdded++
		} else {
			s.stats.ValuesUpdated++
		}
		return
	}

	s.skip("unknown tax authority subpath", claim.Path)
}

func (e *Engine) handleFiscalEntity(s *mergeState, ref claimpath.Ref, claim model.Claim) {
	entity := &s.bp.FiscalEntity

	if ref.Field == "has_fiscal_partner" && ref.Subfield == "" {
		if entity.HasFiscalPartner || !toBool(claim.Value) {
			s.stats.ValuesSkipped++
			return
		}
		entity.HasFiscalPartner = true
		s.wrote("fiscal_entity.has_fiscal_partner")
		s.stats.ValuesAdded++
		return
	}

	person := entity.PersonByRole(ref.Field)
	if person == nil {
		s.skip("unknown fiscal entity role", claim.Path)
		return
	}
	fieldRef := person.FieldRef(ref.Subfield)
	if fieldRef == nil {
		s.skip("unknown fiscal entity field", claim.Path)
		return
	}
	if *fieldRef != "" {
		// First writer wins; no conflict tracking for entity fields.
		s.stats.ValuesSkipped++
		return
	}
	*fieldRef = valueString(claim.Value)
	s.wrote(fmt.Sprintf("fiscal_entity.%s.%s", ref.Field, ref.Subfield))
	s.stats.ValuesAdded++

	// Any fiscal partner fact implies a partnership.
	if ref.Field == "fiscal_partner" && !entity.HasFiscalPartner {
		entity.HasFiscalPartner = true
		s.wrote("fiscal_entity.has_fiscal_partner")
		s.stats.ValuesAdded++
	}
}
