package merge

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/authority"
	"github.com/sells-group/dossier-cli/internal/model"
)

var testClock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func newEngine() *Engine {
	return New(authority.Default(), WithClock(testClock))
}

func bankExtraction(docID string, docType model.DocumentType, amount float64, confidence float64) model.DocumentExtraction {
	return model.DocumentExtraction{
		DocumentID:       docID,
		DetectedType:     docType,
		DetectedPerson:   model.PersonTaxpayer,
		DetectedTaxYears: []string{"2023"},
		Claims: []model.Claim{
			{
				Path:          "assets.bank_savings[0].yearly_data.2023.value_jan_1",
				Value:         amount,
				Confidence:    confidence,
				SourceSnippet: "Saldo per 1 januari NL91ABNA0417164300",
			},
		},
	}
}

func TestMerge_CreatesBankAssetFromFirstClaim(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	res, err := e.MergeDocumentExtraction(bp, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)

	require.Len(t, res.Blueprint.Assets.BankSavings, 1)
	asset := res.Blueprint.Assets.BankSavings[0]
	assert.Equal(t, "banksavings_1", asset.ID)
	assert.Equal(t, "ABN AMRO", asset.BankName)
	assert.Equal(t, "taxpayer", asset.OwnerID)

	dp := asset.YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.True(t, dp.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "D1", dp.SourceDocID)
	assert.Equal(t, model.DocTypeJaaropgaveBank, dp.SourceType)
	assert.Equal(t, 0.9, dp.Confidence)

	assert.Equal(t, 1, res.Stats.ValuesAdded)
	assert.Equal(t, 0, res.Stats.ValuesUpdated)
	assert.Equal(t, 0, res.Stats.ConflictsDetected)
	assert.Empty(t, res.Conflicts)
}

func TestMerge_HigherAuthorityUpdatesSameAsset(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	res1, err := e.MergeDocumentExtraction(bp, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)

	// D2 has lower confidence but higher authority and the same account tail.
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, bankExtraction("D2", model.DocTypeAanslagDefinitief, 10500, 0.8))
	require.NoError(t, err)

	// Same asset, no duplicate.
	require.Len(t, res2.Blueprint.Assets.BankSavings, 1)
	assert.Equal(t, "banksavings_1", res2.Blueprint.Assets.BankSavings[0].ID)

	dp := res2.Blueprint.Assets.BankSavings[0].YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.True(t, dp.Amount.Equal(decimal.NewFromInt(10500)))
	assert.Equal(t, "D2", dp.SourceDocID)

	require.Len(t, res2.Conflicts, 1)
	c := res2.Conflicts[0]
	assert.Equal(t, model.ReasonHigherAuthority, c.ResolutionReason)
	assert.False(t, c.NeedsReview)
	assert.Equal(t, "10500", c.KeptValue)
	assert.Equal(t, "D2", c.KeptSourceDocID)
	assert.Equal(t, "10000", c.RejectedValue)
	assert.Equal(t, "D1", c.RejectedSourceDocID)
	assert.Equal(t, 1, res2.Stats.ValuesUpdated)
}

func TestMerge_AuthorityMonotonicity(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	// High authority first, then a lower-authority disagreement.
	res1, err := e.MergeDocumentExtraction(bp, bankExtraction("D2", model.DocTypeAanslagDefinitief, 10500, 0.8))
	require.NoError(t, err)
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.8))
	require.NoError(t, err)

	dp := res2.Blueprint.Assets.BankSavings[0].YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.True(t, dp.Amount.Equal(decimal.NewFromInt(10500)), "lower authority must never replace")
	require.Len(t, res2.Conflicts, 1)
	assert.Equal(t, model.ReasonLowerConfidence, res2.Conflicts[0].ResolutionReason)
	assert.True(t, res2.Conflicts[0].NeedsReview)
	assert.Equal(t, 1, res2.Stats.ValuesSkipped)
}

func TestMerge_IdempotentOnIdenticalResubmission(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()
	extraction := bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9)

	res1, err := e.MergeDocumentExtraction(bp, extraction)
	require.NoError(t, err)
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, extraction)
	require.NoError(t, err)

	assert.Equal(t, 0, res2.Stats.ValuesUpdated)
	assert.Equal(t, 0, res2.Stats.ConflictsDetected)
	assert.Empty(t, res2.Conflicts)
	require.Len(t, res2.Blueprint.Assets.BankSavings, 1)
}

func TestMerge_ManualOverrideInvariance(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	res1, err := e.MergeDocumentExtraction(bp, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)

	// A human pins the value.
	path := "assets.bank_savings[0].yearly_data.2023.value_jan_1"
	res1.Blueprint.ManualOverrides[path] = 11111

	// Even the highest-authority document cannot overwrite it.
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, bankExtraction("D2", model.DocTypeAanslagDefinitief, 99999, 1.0))
	require.NoError(t, err)

	dp := res2.Blueprint.Assets.BankSavings[0].YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.True(t, dp.Amount.Equal(decimal.NewFromInt(10000)), "stored DataPoint untouched")

	require.Len(t, res2.Conflicts, 1)
	c := res2.Conflicts[0]
	assert.Equal(t, model.ReasonManualOverride, c.ResolutionReason)
	assert.True(t, c.NeedsReview)
	assert.Equal(t, "11111", c.KeptValue)
	assert.Equal(t, "99999", c.RejectedValue)
}

func TestMerge_AppendOnlyLedger(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	extractions := []model.DocumentExtraction{
		bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9),
		bankExtraction("D2", model.DocTypeAanslagDefinitief, 10500, 0.8),
		bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9),
	}

	current := bp
	prevConflicts, prevContribs := 0, 0
	for _, ex := range extractions {
		res, err := e.MergeDocumentExtraction(current, ex)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(res.Blueprint.MergeConflicts), prevConflicts)
		assert.Equal(t, prevContribs+1, len(res.Blueprint.DocumentContributions))
		prevConflicts = len(res.Blueprint.MergeConflicts)
		prevContribs = len(res.Blueprint.DocumentContributions)
		current = res.Blueprint
	}

	// D1 registered once despite being merged twice.
	assert.Len(t, current.SourceDocuments, 2)
}

func TestMerge_InputBlueprintNeverMutated(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	_, err := e.MergeDocumentExtraction(bp, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)

	assert.Empty(t, bp.Assets.BankSavings)
	assert.Empty(t, bp.DocumentContributions)
	assert.Empty(t, bp.SourceDocuments)
}

func TestMerge_ContributionListsOnlyWrittenPaths(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	res1, err := e.MergeDocumentExtraction(bp, bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)
	assert.Equal(t, "D1", res1.Contribution.DocumentID)
	// The creation claim writes the yearly cell; the synthesized identity
	// fields are not claim writes.
	assert.Contains(t, res1.Contribution.Paths, "assets.bank_savings[0].yearly_data.2023.value_jan_1")

	// A fully rejected re-merge contributes an empty path list.
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, bankExtraction("D3", model.DocTypeJaaropgaveBank, 10000, 0.9))
	require.NoError(t, err)
	assert.Empty(t, res2.Contribution.Paths)
	require.Len(t, res2.Blueprint.DocumentContributions, 2)
}

func TestMerge_SourceRegistryReadability(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	res, err := e.MergeDocumentExtraction(bp, model.DocumentExtraction{
		DocumentID:   "DX",
		DetectedType: model.DocTypeOther,
		Claims: []model.Claim{
			{Path: "assets.other[0].description", Value: "oldtimer", Confidence: 0.4},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Blueprint.SourceDocuments, 1)
	assert.False(t, res.Blueprint.SourceDocuments[0].Readable)
	require.Len(t, res.Blueprint.Assets.Other, 1)
	assert.Equal(t, "oldtimer", res.Blueprint.Assets.Other[0].Description)
}

func TestMerge_AssetIdentityFieldFirstWriterWins(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeJaaropgaveBank,
		Claims: []model.Claim{
			{Path: "assets.bank_savings[0].bank_name", Value: "ABN AMRO", Confidence: 0.9, SourceSnippet: "NL91ABNA0417164300"},
			{Path: "assets.bank_savings[0].bank_name", Value: "ING", Confidence: 0.99, SourceSnippet: "NL91ABNA0417164300"},
		},
	}
	res, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)

	require.Len(t, res.Blueprint.Assets.BankSavings, 1)
	// The hint extractor already named the bank at creation; the identity
	// field is never contested once populated.
	assert.Equal(t, "ABN AMRO", res.Blueprint.Assets.BankSavings[0].BankName)
	assert.Empty(t, res.Conflicts)
}

func TestMerge_SameBatchIndexReusesCreatedAsset(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	// No identity hints at all: the first claim creates, the second claim
	// with the same batch-local index reuses the created asset.
	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeJaaropgaveBelegging,
		Claims: []model.Claim{
			{Path: "assets.investments[0].yearly_data.2023.value_jan_1", Value: 5000.0, Confidence: 0.8},
			{Path: "assets.investments[0].yearly_data.2023.value_dec_31", Value: 5400.0, Confidence: 0.8},
			{Path: "assets.investments[1].yearly_data.2023.value_jan_1", Value: 100.0, Confidence: 0.8},
		},
	}
	res, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)

	require.Len(t, res.Blueprint.Assets.Investments, 2)
	first := res.Blueprint.Assets.Investments[0]
	assert.NotNil(t, first.YearlyData.Get("2023", "value_jan_1"))
	assert.NotNil(t, first.YearlyData.Get("2023", "value_dec_31"))
	assert.Equal(t, 3, res.Stats.ValuesAdded)
}

func TestMerge_DebtAllowListAndMatching(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex1 := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeHypotheekJaaroverzicht,
		Claims: []model.Claim{
			{Path: "debts[0].yearly_data.2023.balance_dec_31", Value: 250000.0, Confidence: 0.9, SourceSnippet: "Hypotheek Rabobank"},
			{Path: "debts[0].description", Value: "iets", Confidence: 0.9, SourceSnippet: "Hypotheek Rabobank"},
		},
	}
	res1, err := e.MergeDocumentExtraction(bp, ex1)
	require.NoError(t, err)

	require.Len(t, res1.Blueprint.Debts, 1)
	assert.Equal(t, "debt_1", res1.Blueprint.Debts[0].ID)
	assert.NotNil(t, res1.Blueprint.Debts[0].YearlyData.Get("2023", "balance_dec_31"))
	// Non-allow-listed field dropped.
	assert.Equal(t, 1, res1.Stats.ValuesSkipped)

	// A later document mentioning the same lender matches the same debt.
	ex2 := model.DocumentExtraction{
		DocumentID:   "D2",
		DetectedType: model.DocTypeAangifte,
		Claims: []model.Claim{
			{Path: "debts[0].yearly_data.2023.interest_paid", Value: 5200.0, Confidence: 0.8, SourceSnippet: "Betaalde rente Hypotheek Rabobank"},
		},
	}
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, ex2)
	require.NoError(t, err)
	require.Len(t, res2.Blueprint.Debts, 1)
	assert.NotNil(t, res2.Blueprint.Debts[0].YearlyData.Get("2023", "interest_paid"))
}

func TestMerge_TaxAuthorityAggregates(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex1 := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeJaaropgaveBank, // below aggregate threshold
		Claims: []model.Claim{
			{Path: "tax_authority_data.2023.household_totals.total_assets_gross", Value: 80000.0, Confidence: 0.7},
			{Path: "tax_authority_data.2023.per_person.taxpayer.allocated_assets", Value: 40000.0, Confidence: 0.7},
		},
	}
	res1, err := e.MergeDocumentExtraction(bp, ex1)
	require.NoError(t, err)

	ty := res1.Blueprint.TaxAuthorityData["2023"]
	require.NotNil(t, ty)
	assert.Equal(t, "D1", ty.SourceDocID)
	assert.True(t, ty.HouseholdTotals["total_assets_gross"].Equal(decimal.NewFromInt(80000)))
	// Lazily created allocation keeps its zeroed defaults alongside the write.
	assert.True(t, ty.PerPerson["taxpayer"]["allocated_assets"].Equal(decimal.NewFromInt(40000)))
	assert.True(t, ty.PerPerson["taxpayer"]["allocated_debts"].IsZero())
	assert.Equal(t, 2, res1.Stats.ValuesAdded)

	// Low authority cannot overwrite a populated aggregate; rejection is
	// silent (no conflict record — kept asymmetry).
	ex2 := ex1
	ex2.DocumentID = "D2"
	ex2.Claims = []model.Claim{
		{Path: "tax_authority_data.2023.household_totals.total_assets_gross", Value: 90000.0, Confidence: 0.99},
	}
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, ex2)
	require.NoError(t, err)
	assert.True(t, res2.Blueprint.TaxAuthorityData["2023"].HouseholdTotals["total_assets_gross"].Equal(decimal.NewFromInt(80000)))
	assert.Empty(t, res2.Conflicts)
	assert.Equal(t, 1, res2.Stats.ValuesSkipped)

	// A final assessment meets the threshold and overwrites.
	ex3 := ex2
	ex3.DocumentID = "D3"
	ex3.DetectedType = model.DocTypeAanslagDefinitief
	res3, err := e.MergeDocumentExtraction(res2.Blueprint, ex3)
	require.NoError(t, err)
	assert.True(t, res3.Blueprint.TaxAuthorityData["2023"].HouseholdTotals["total_assets_gross"].Equal(decimal.NewFromInt(90000)))
	assert.Equal(t, 1, res3.Stats.ValuesUpdated)
}

func TestMerge_AggregateResubmissionIsIdempotent(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeAanslagDefinitief,
		Claims: []model.Claim{
			{Path: "tax_authority_data.2023.household_totals.total_assets_gross", Value: 80000.0, Confidence: 0.9},
			{Path: "tax_authority_data.2023.per_person.taxpayer.allocated_assets", Value: 40000.0, Confidence: 0.9},
		},
	}
	res1, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)
	assert.Equal(t, 2, res1.Stats.ValuesAdded)

	// The same high-authority document again: every path already holds
	// the identical value, so nothing is written.
	res2, err := e.MergeDocumentExtraction(res1.Blueprint, ex)
	require.NoError(t, err)

	assert.Equal(t, 0, res2.Stats.ValuesAdded)
	assert.Equal(t, 0, res2.Stats.ValuesUpdated)
	assert.Equal(t, 2, res2.Stats.ValuesSkipped)
	assert.Empty(t, res2.Contribution.Paths)
	assert.True(t, res2.Blueprint.TaxAuthorityData["2023"].HouseholdTotals["total_assets_gross"].Equal(decimal.NewFromInt(80000)))
}

func TestMerge_SkippedAggregateClaimsLeaveNoTrace(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeAanslagDefinitief,
		Claims: []model.Claim{
			{Path: "tax_authority_data.2023.household_totals.total_assets_gross", Value: "n/a", Confidence: 0.9},
			{Path: "tax_authority_data.2024.exemption", Value: 1000.0, Confidence: 0.9},
		},
	}
	res, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.ValuesSkipped)
	assert.Empty(t, res.Blueprint.TaxAuthorityData, "dropped claims must not create year records")
}

func TestMerge_FiscalEntity(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeAangifte,
		Claims: []model.Claim{
			{Path: "fiscal_entity.taxpayer.name", Value: "J. de Vries", Confidence: 0.95},
			{Path: "fiscal_entity.taxpayer.name", Value: "Jan de Vries", Confidence: 0.99},
			{Path: "fiscal_entity.fiscal_partner.name", Value: "A. de Vries", Confidence: 0.9},
		},
	}
	res, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)

	entity := res.Blueprint.FiscalEntity
	assert.Equal(t, "J. de Vries", entity.Taxpayer.Name, "first writer wins")
	assert.Equal(t, "A. de Vries", entity.FiscalPartner.Name)
	assert.True(t, entity.HasFiscalPartner, "partner fact implies partnership")
	assert.Empty(t, res.Conflicts, "entity fields carry no conflict tracking")
	assert.Contains(t, res.Contribution.Paths, "fiscal_entity.has_fiscal_partner")
	// The implied partnership flag is a real write: stats and the
	// contribution ledger must agree.
	assert.Equal(t, len(res.Contribution.Paths), res.Stats.ValuesAdded)
	assert.Equal(t, 3, res.Stats.ValuesAdded)
}

func TestMerge_MalformedAndUnknownClaimsAreNonFatal(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	ex := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeAangifte,
		Claims: []model.Claim{
			{Path: "assets.crypto[0].value", Value: 1.0, Confidence: 0.5},
			{Path: "pension_rights.employer.value", Value: 2.0, Confidence: 0.5},
			{Path: "fiscal_entity.taxpayer.name", Value: "J. de Vries", Confidence: 0.9},
		},
	}
	res, err := e.MergeDocumentExtraction(bp, ex)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.ValuesSkipped)
	assert.Equal(t, 1, res.Stats.ValuesAdded)
	assert.Equal(t, "J. de Vries", res.Blueprint.FiscalEntity.Taxpayer.Name)
}

func TestMerge_InvalidBlueprintShapeIsFatal(t *testing.T) {
	e := newEngine()
	broken := &model.Blueprint{} // maps never initialized

	_, err := e.MergeDocumentExtraction(broken, bankExtraction("D1", model.DocTypeJaaropgaveBank, 1, 0.5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blueprint")
}

func TestMergeMultipleExtractions(t *testing.T) {
	e := newEngine()
	bp := model.NewBlueprint()

	final, err := e.MergeMultipleExtractions(bp, []model.DocumentExtraction{
		bankExtraction("D1", model.DocTypeJaaropgaveBank, 10000, 0.9),
		bankExtraction("D2", model.DocTypeAanslagDefinitief, 10500, 0.8),
	})
	require.NoError(t, err)

	require.Len(t, final.Assets.BankSavings, 1)
	dp := final.Assets.BankSavings[0].YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.True(t, dp.Amount.Equal(decimal.NewFromInt(10500)))
	assert.Len(t, final.DocumentContributions, 2)
	assert.Len(t, final.MergeConflicts, 1)
	assert.Empty(t, bp.DocumentContributions, "input untouched")
}
