package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testBlueprint(t *testing.T) *model.Blueprint {
	t.Helper()
	bp := model.NewBlueprint()
	bp.Assets.BankSavings = append(bp.Assets.BankSavings, model.BankAsset{
		AssetBase:     model.AssetBase{ID: "banksavings_1", YearlyData: model.YearlyData{}},
		AccountMasked: "****4300",
		BankName:      "ABN AMRO",
	})
	bp.Assets.BankSavings[0].YearlyData.Set("2023", "value_jan_1", model.DataPoint{
		Amount:      decimal.RequireFromString("10000.55"),
		SourceDocID: "D1",
		SourceType:  model.DocTypeJaaropgaveBank,
		Confidence:  0.9,
	})
	return bp
}

func TestSQLite_SaveAndGetLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bp := testBlueprint(t)
	v1, err := st.SaveBlueprint(ctx, "case-1", bp, "D1")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	got, err := st.GetLatestBlueprint(ctx, "case-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "D1", got.DocumentID)

	require.Len(t, got.Blueprint.Assets.BankSavings, 1)
	dp := got.Blueprint.Assets.BankSavings[0].YearlyData.Get("2023", "value_jan_1")
	require.NotNil(t, dp)
	assert.Equal(t, "10000.55", dp.Amount.String(), "decimal precision survives storage")
}

func TestSQLite_VersionsAppendOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bp := testBlueprint(t)
	for i, doc := range []string{"D1", "D2", "D3"} {
		v, err := st.SaveBlueprint(ctx, "case-1", bp, doc)
		require.NoError(t, err)
		assert.Equal(t, i+1, v.Version)
	}

	versions, err := st.ListVersions(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "D1", versions[0].DocumentID)
	assert.Equal(t, "D3", versions[2].DocumentID)

	latest, err := st.GetLatestBlueprint(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	// Historical versions stay addressable.
	v2, err := st.GetBlueprintVersion(ctx, "case-1", 2)
	require.NoError(t, err)
	require.NotNil(t, v2)
	assert.Equal(t, "D2", v2.DocumentID)
}

func TestSQLite_VersionsPerCase(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bp := model.NewBlueprint()
	_, err := st.SaveBlueprint(ctx, "case-a", bp, "D1")
	require.NoError(t, err)
	vb, err := st.SaveBlueprint(ctx, "case-b", bp, "D9")
	require.NoError(t, err)
	assert.Equal(t, 1, vb.Version, "version counters are per case")

	cases, err := st.ListCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"case-a", "case-b"}, cases)
}

func TestSQLite_GetLatest_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetLatestBlueprint(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ExtractionArchive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e1 := model.DocumentExtraction{
		DocumentID:   "D1",
		DetectedType: model.DocTypeJaaropgaveBank,
		Claims: []model.Claim{
			{Path: "assets.bank_savings[0].yearly_data.2023.value_jan_1", Value: 10000.0, Confidence: 0.9},
		},
	}
	e2 := model.DocumentExtraction{DocumentID: "D2", DetectedType: model.DocTypeAangifte}

	require.NoError(t, st.ArchiveExtraction(ctx, "case-1", e1))
	require.NoError(t, st.ArchiveExtraction(ctx, "case-1", e2))
	require.NoError(t, st.ArchiveExtraction(ctx, "case-2", e1))

	got, err := st.ListExtractions(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "D1", got[0].DocumentID)
	require.Len(t, got[0].Claims, 1)
	assert.Equal(t, "D2", got[1].DocumentID)
}
