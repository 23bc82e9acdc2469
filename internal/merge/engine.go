// Package merge folds document-extraction claims into a case blueprint.
// The engine is a synchronous, CPU-only transform: it deep-copies the
// blueprint, routes each claim in list order, and returns the updated copy
// together with the new audit records and summary counters.
package merge

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/authority"
	"github.com/sells-group/dossier-cli/internal/claimpath"
	"github.com/sells-group/dossier-cli/internal/model"
)

// Engine merges document extractions into blueprints. It is safe to use
// concurrently on independent blueprints; merges on the same case must be
// serialized by the caller.
type Engine struct {
	ranking authority.Ranking
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock; used by tests for deterministic
// conflict timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine with the given authority ranking.
func New(ranking authority.Ranking, opts ...Option) *Engine {
	e := &Engine{ranking: ranking, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one merge call.
type Result struct {
	Blueprint    *model.Blueprint         `json:"blueprint"`
	Conflicts    []model.ConflictRecord   `json:"conflicts"`
	Contribution model.ContributionRecord `json:"contribution"`
	Stats        model.MergeStats         `json:"stats"`
}

// mergeState carries one call's working set: the blueprint copy being
// mutated, the resolver bound to its manual overrides, the ledger of
// written paths and conflicts, and the extraction-local asset/debt index
// mappings (extractions number assets per document, not per blueprint).
type mergeState struct {
	bp         *model.Blueprint
	extraction model.DocumentExtraction
	resolver   *authority.Resolver

	writtenSet  map[string]struct{}
	writtenSeq  []string
	conflicts   []model.ConflictRecord
	stats       model.MergeStats
	assetByRef  map[assetRefKey]int
	debtByIndex map[int]int
}

type assetRefKey struct {
	kind  model.AssetKind
	index int
}

func (s *mergeState) wrote(path string) {
	if _, ok := s.writtenSet[path]; ok {
		return
	}
	s.writtenSet[path] = struct{}{}
	s.writtenSeq = append(s.writtenSeq, path)
}

func (s *mergeState) recordConflict(c *model.ConflictRecord) {
	if c == nil {
		return
	}
	s.conflicts = append(s.conflicts, *c)
}

// MergeDocumentExtraction merges one extraction into the blueprint and
// returns the updated copy. The input blueprint is never mutated. A
// structurally invalid blueprint is a fatal programming-invariant error;
// individual malformed claims are logged and skipped.
func (e *Engine) MergeDocumentExtraction(bp *model.Blueprint, extraction model.DocumentExtraction) (*Result, error) {
	if err := bp.Validate(); err != nil {
		return nil, eris.Wrap(err, "merge: blueprint shape")
	}

	working, err := bp.Clone()
	if err != nil {
		return nil, eris.Wrap(err, "merge: clone blueprint")
	}

	state := &mergeState{
		bp:          working,
		extraction:  extraction,
		resolver:    authority.NewResolver(e.ranking, working.ManualOverrides, e.now),
		writtenSet:  make(map[string]struct{}),
		assetByRef:  make(map[assetRefKey]int),
		debtByIndex: make(map[int]int),
	}

	for _, claim := range extraction.Claims {
		ref, err := claimpath.Parse(claim.Path)
		if err != nil {
			zap.L().Warn("merge: dropping claim with malformed path",
				zap.String("document_id", extraction.DocumentID),
				zap.String("path", claim.Path),
				zap.Error(err),
			)
			state.stats.ValuesSkipped++
			continue
		}
		e.route(state, ref, claim)
	}

	contribution := model.ContributionRecord{
		DocumentID:   extraction.DocumentID,
		DocumentType: extraction.DetectedType,
		Paths:        state.writtenSeq,
		MergedAt:     e.now().UTC(),
	}
	working.DocumentContributions = append(working.DocumentContributions, contribution)

	registerSourceDocument(working, extraction)

	working.MergeConflicts = append(working.MergeConflicts, state.conflicts...)
	state.stats.ConflictsDetected = len(state.conflicts)

	zap.L().Info("merge: extraction folded",
		zap.String("document_id", extraction.DocumentID),
		zap.String("document_type", string(extraction.DetectedType)),
		zap.Int("claims", len(extraction.Claims)),
		zap.Int("values_added", state.stats.ValuesAdded),
		zap.Int("values_updated", state.stats.ValuesUpdated),
		zap.Int("values_skipped", state.stats.ValuesSkipped),
		zap.Int("conflicts", state.stats.ConflictsDetected),
	)

	return &Result{
		Blueprint:    working,
		Conflicts:    state.conflicts,
		Contribution: contribution,
		Stats:        state.stats,
	}, nil
}

// MergeMultipleExtractions folds a sequence of extractions in order. Each
// extraction gets its own working copy and resolver, so earlier merges are
// fully settled before later ones run.
func (e *Engine) MergeMultipleExtractions(bp *model.Blueprint, extractions []model.DocumentExtraction) (*model.Blueprint, error) {
	current := bp
	for _, extraction := range extractions {
		result, err := e.MergeDocumentExtraction(current, extraction)
		if err != nil {
			return nil, eris.Wrapf(err, "merge: extraction %s", extraction.DocumentID)
		}
		current = result.Blueprint
	}
	return current, nil
}

// registerSourceDocument adds the document to the registry once.
// Readability is derived from whether detection produced a real type.
func registerSourceDocument(bp *model.Blueprint, extraction model.DocumentExtraction) {
	if bp.HasSourceDocument(extraction.DocumentID) {
		return
	}
	bp.SourceDocuments = append(bp.SourceDocuments, model.SourceDocument{
		DocumentID:   extraction.DocumentID,
		DocumentType: extraction.DetectedType,
		TaxYears:     extraction.DetectedTaxYears,
		Person:       extraction.DetectedPerson,
		Readable:     extraction.DetectedType != model.DocTypeOther,
	})
}

// ownerID maps the extraction's detected person to a fiscal-entity person
// id for back-references on created assets and debts.
func ownerID(p model.PersonRole) string {
	switch p {
	case model.PersonTaxpayer:
		return "taxpayer"
	case model.PersonPartner:
		return "partner"
	default:
		return ""
	}
}
