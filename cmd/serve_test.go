package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/authority"
	"github.com/sells-group/dossier-cli/internal/merge"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

func newTestEnv(t *testing.T) (store.Store, *merge.Engine) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st, merge.New(authority.Default())
}

const bankExtractionJSON = `{
	"document_id": "D1",
	"detected_type": "jaaropgave_bank",
	"detected_person": "taxpayer",
	"detected_tax_years": ["2023"],
	"claims": [
		{
			"path": "assets.bank_savings[0].yearly_data.2023.value_jan_1",
			"value": 10000,
			"confidence": 0.9,
			"source_snippet": "Saldo per 1 januari NL91ABNA0417164300"
		}
	]
}`

func TestServe_Health(t *testing.T) {
	st, eng := newTestEnv(t)
	srv := httptest.NewServer(newRouter(st, eng))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServe_MergeAndReadBack(t *testing.T) {
	st, eng := newTestEnv(t)
	srv := httptest.NewServer(newRouter(st, eng))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/cases/case-1/merge", "application/json", strings.NewReader(bankExtractionJSON))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mergeResp struct {
		CaseID  string           `json:"case_id"`
		Version int              `json:"version"`
		Stats   model.MergeStats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mergeResp))
	assert.Equal(t, "case-1", mergeResp.CaseID)
	assert.Equal(t, 1, mergeResp.Version)
	assert.Equal(t, 1, mergeResp.Stats.ValuesAdded)

	resp2, err := http.Get(srv.URL + "/cases/case-1/blueprint")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var bv store.BlueprintVersion
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&bv))
	assert.Equal(t, 1, bv.Version)
	require.Len(t, bv.Blueprint.Assets.BankSavings, 1)
	assert.Equal(t, "banksavings_1", bv.Blueprint.Assets.BankSavings[0].ID)
}

func TestServe_ConflictsFilter(t *testing.T) {
	st, eng := newTestEnv(t)
	srv := httptest.NewServer(newRouter(st, eng))
	defer srv.Close()

	post := func(body string) {
		resp, err := http.Post(srv.URL+"/cases/case-1/merge", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	post(bankExtractionJSON)
	// Higher authority disagreement: resolved without review.
	post(strings.NewReplacer(
		`"D1"`, `"D2"`,
		`"jaaropgave_bank"`, `"aanslag_definitief"`,
		`"value": 10000`, `"value": 10500`,
	).Replace(bankExtractionJSON))

	resp, err := http.Get(srv.URL + "/cases/case-1/conflicts")
	require.NoError(t, err)
	defer resp.Body.Close()

	var all []model.ConflictRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all, 1)
	assert.Equal(t, model.ReasonHigherAuthority, all[0].ResolutionReason)

	resp2, err := http.Get(srv.URL + "/cases/case-1/conflicts?needs_review=true")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var flagged []model.ConflictRecord
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&flagged))
	assert.Empty(t, flagged)
}

func TestServe_MergeRejectsBadRequests(t *testing.T) {
	st, eng := newTestEnv(t)
	srv := httptest.NewServer(newRouter(st, eng))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/cases/case-1/merge", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/cases/case-1/merge", "application/json", strings.NewReader(`{"claims":[]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing document_id")
}

func TestServe_UnknownCase(t *testing.T) {
	st, eng := newTestEnv(t)
	srv := httptest.NewServer(newRouter(st, eng))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/cases/ghost/blueprint")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Versions of an unknown case are an empty list, not an error.
	resp2, err := http.Get(srv.URL + "/cases/ghost/versions")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var versions []store.VersionInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&versions))
	assert.Empty(t, versions)
}
