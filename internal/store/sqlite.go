package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dossier-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS blueprint_versions (
	id          TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	version     INTEGER NOT NULL,
	document_id TEXT,
	conflicts   INTEGER NOT NULL DEFAULT 0,
	blueprint   TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (case_id, version)
);

CREATE TABLE IF NOT EXISTS extraction_archive (
	id          TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	document_id TEXT NOT NULL,
	extraction  TEXT NOT NULL,
	received_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_blueprint_versions_case ON blueprint_versions(case_id, version DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_archive_case ON extraction_archive(case_id, received_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBlueprint(ctx context.Context, caseID string, bp *model.Blueprint, documentID string) (*BlueprintVersion, error) {
	blueprintJSON, err := json.Marshal(bp)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal blueprint")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM blueprint_versions WHERE case_id = ?`,
		caseID,
	).Scan(&version)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: next version for case %s", caseID)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO blueprint_versions (id, case_id, version, document_id, conflicts, blueprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), caseID, version, documentID, len(bp.MergeConflicts), string(blueprintJSON), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert blueprint version for case %s", caseID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit tx")
	}

	return &BlueprintVersion{
		CaseID:     caseID,
		Version:    version,
		DocumentID: documentID,
		Blueprint:  bp,
		CreatedAt:  now,
	}, nil
}

func (s *SQLiteStore) GetLatestBlueprint(ctx context.Context, caseID string) (*BlueprintVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions
		 WHERE case_id = ? ORDER BY version DESC LIMIT 1`,
		caseID,
	)
	return scanBlueprintVersion(row)
}

func (s *SQLiteStore) GetBlueprintVersion(ctx context.Context, caseID string, version int) (*BlueprintVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions
		 WHERE case_id = ? AND version = ?`,
		caseID, version,
	)
	return scanBlueprintVersion(row)
}

func (s *SQLiteStore) ListVersions(ctx context.Context, caseID string) ([]VersionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, document_id, conflicts, created_at FROM blueprint_versions
		 WHERE case_id = ? ORDER BY version ASC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list versions")
	}
	defer rows.Close()

	var versions []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var docID sql.NullString
		if err := rows.Scan(&v.Version, &docID, &v.Conflicts, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		v.DocumentID = docID.String
		versions = append(versions, v)
	}
	return versions, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

func (s *SQLiteStore) ListCases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT case_id FROM blueprint_versions ORDER BY case_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	var cases []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case id")
		}
		cases = append(cases, id)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}

func (s *SQLiteStore) ArchiveExtraction(ctx context.Context, caseID string, extraction model.DocumentExtraction) error {
	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_archive (id, case_id, document_id, extraction, received_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), caseID, extraction.DocumentID, string(extractionJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: archive extraction %s", extraction.DocumentID)
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, caseID string) ([]model.DocumentExtraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT extraction FROM extraction_archive WHERE case_id = ? ORDER BY received_at ASC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var extractions []model.DocumentExtraction
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		var e model.DocumentExtraction
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extraction")
		}
		extractions = append(extractions, e)
	}
	return extractions, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanBlueprintVersion(row scannable) (*BlueprintVersion, error) {
	var v BlueprintVersion
	var docID sql.NullString
	var blueprintJSON string

	err := row.Scan(&v.CaseID, &v.Version, &docID, &blueprintJSON, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan blueprint version")
	}
	v.DocumentID = docID.String

	v.Blueprint = &model.Blueprint{}
	if err := json.Unmarshal([]byte(blueprintJSON), v.Blueprint); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal blueprint")
	}
	return &v, nil
}
