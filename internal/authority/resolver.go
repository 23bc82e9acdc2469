package authority

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Outcome is the resolver's verdict for one field. Conflict is non-nil
// whenever the decision must be auditable.
type Outcome struct {
	Accept   bool
	Conflict *model.ConflictRecord
}

// Resolver decides whether incoming values replace existing ones, honoring
// manual overrides and the authority ranking.
type Resolver struct {
	ranking   Ranking
	overrides map[string]any
	now       func() time.Time
}

// NewResolver creates a resolver over the given ranking and the
// blueprint's manual overrides. now may be nil (defaults to time.Now).
func NewResolver(ranking Ranking, overrides map[string]any, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{ranking: ranking, overrides: overrides, now: now}
}

// ResolveDataPoint applies the decision procedure for a DataPoint field:
//  1. no existing value: accept unconditionally
//  2. manual override at the path: reject with a manual_override conflict
//  3. strictly higher incoming authority: accept, higher_authority conflict
//  4. equal authority, strictly higher incoming confidence: accept,
//     higher_confidence conflict
//  5. otherwise reject; a lower_confidence conflict is recorded only when
//     the rejected amount actually differs from the kept one
func (r *Resolver) ResolveDataPoint(path string, existing *model.DataPoint, incoming model.DataPoint) Outcome {
	if existing == nil {
		return Outcome{Accept: true}
	}

	if override, ok := r.overrides[path]; ok {
		return Outcome{Accept: false, Conflict: r.conflict(
			path, model.ReasonManualOverride, true,
			fmt.Sprintf("%v", override), existing.SourceDocID, existing.Confidence,
			incoming,
		)}
	}

	existingRank := r.ranking.Rank(existing.SourceType)
	incomingRank := r.ranking.Rank(incoming.SourceType)

	if incomingRank > existingRank {
		return Outcome{Accept: true, Conflict: r.conflict(
			path, model.ReasonHigherAuthority, false,
			incoming.Amount.String(), incoming.SourceDocID, incoming.Confidence,
			model.DataPoint{
				Amount:      existing.Amount,
				SourceDocID: existing.SourceDocID,
				Confidence:  existing.Confidence,
			},
		)}
	}

	if incomingRank == existingRank && incoming.Confidence > existing.Confidence {
		return Outcome{Accept: true, Conflict: r.conflict(
			path, model.ReasonHigherConfidence, true,
			incoming.Amount.String(), incoming.SourceDocID, incoming.Confidence,
			model.DataPoint{
				Amount:      existing.Amount,
				SourceDocID: existing.SourceDocID,
				Confidence:  existing.Confidence,
			},
		)}
	}

	if incoming.Amount.Equal(existing.Amount) {
		// Repeated identical extraction: skip without audit noise.
		return Outcome{Accept: false}
	}

	return Outcome{Accept: false, Conflict: r.conflict(
		path, model.ReasonLowerConfidence, true,
		existing.Amount.String(), existing.SourceDocID, existing.Confidence,
		incoming,
	)}
}

// ResolveAggregate applies the simplified rule for plain aggregate fields:
// accept when no meaningful value exists yet, or when the incoming
// document's authority meets the high-authority threshold. Rejections are
// silent — no conflict is recorded for aggregates.
func (r *Resolver) ResolveAggregate(path string, existing decimal.Decimal, existingSet bool, docType model.DocumentType) bool {
	if _, ok := r.overrides[path]; ok {
		zap.L().Debug("resolver: aggregate blocked by manual override", zap.String("path", path))
		return false
	}
	if !existingSet || existing.IsZero() {
		return true
	}
	return r.ranking.MeetsAggregateThreshold(docType)
}

// conflict assembles an immutable conflict record. The kept side describes
// the value that remains at the path after the decision; the rejected side
// is the loser.
//
// For accepted decisions the caller passes the incoming doc as the kept
// source and the prior DataPoint as rejected; for rejections the existing
// value stays kept and the incoming DataPoint is rejected.
func (r *Resolver) conflict(
	path string, reason model.ResolutionReason, needsReview bool,
	keptValue, keptDocID string, keptConfidence float64,
	rejected model.DataPoint,
) *model.ConflictRecord {
	c := &model.ConflictRecord{
		ID:                  uuid.New().String(),
		Path:                path,
		KeptValue:           keptValue,
		KeptSourceDocID:     keptDocID,
		KeptConfidence:      keptConfidence,
		RejectedValue:       rejected.Amount.String(),
		RejectedSourceDocID: rejected.SourceDocID,
		RejectedConfidence:  rejected.Confidence,
		ResolutionReason:    reason,
		OccurredAt:          r.now().UTC(),
		NeedsReview:         needsReview,
	}
	zap.L().Debug("resolver: conflict recorded",
		zap.String("path", path),
		zap.String("reason", string(reason)),
		zap.Bool("needs_review", needsReview),
	)
	return c
}
