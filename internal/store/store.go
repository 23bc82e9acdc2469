package store

import (
	"context"
	"time"

	"github.com/sells-group/dossier-cli/internal/model"
)

// BlueprintVersion is one immutable snapshot of a case blueprint. Versions
// are append-only: every merge writes a new version, never rewrites one.
type BlueprintVersion struct {
	CaseID     string           `json:"case_id"`
	Version    int              `json:"version"`
	DocumentID string           `json:"document_id,omitempty"`
	Blueprint  *model.Blueprint `json:"blueprint"`
	CreatedAt  time.Time        `json:"created_at"`
}

// VersionInfo summarizes a stored version without its blueprint payload.
type VersionInfo struct {
	Version    int       `json:"version"`
	DocumentID string    `json:"document_id,omitempty"`
	Conflicts  int       `json:"conflicts"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the persistence interface for case blueprints and the
// extraction archive.
type Store interface {
	// Blueprint versions
	SaveBlueprint(ctx context.Context, caseID string, bp *model.Blueprint, documentID string) (*BlueprintVersion, error)
	GetLatestBlueprint(ctx context.Context, caseID string) (*BlueprintVersion, error)
	GetBlueprintVersion(ctx context.Context, caseID string, version int) (*BlueprintVersion, error)
	ListVersions(ctx context.Context, caseID string) ([]VersionInfo, error)
	ListCases(ctx context.Context) ([]string, error)

	// Extraction archive
	ArchiveExtraction(ctx context.Context, caseID string, extraction model.DocumentExtraction) error
	ListExtractions(ctx context.Context, caseID string) ([]model.DocumentExtraction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
