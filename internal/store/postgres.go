package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/db"
	"github.com/sells-group/dossier-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_latest_blueprint":  `SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions WHERE case_id = $1 ORDER BY version DESC LIMIT 1`,
	"get_blueprint_version": `SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions WHERE case_id = $1 AND version = $2`,
	"archive_extraction":    `INSERT INTO extraction_archive (id, case_id, document_id, extraction, received_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS blueprint_versions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id     TEXT NOT NULL,
	version     INTEGER NOT NULL,
	document_id TEXT,
	conflicts   INTEGER NOT NULL DEFAULT 0,
	blueprint   JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (case_id, version)
);

CREATE TABLE IF NOT EXISTS extraction_archive (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id     TEXT NOT NULL,
	document_id TEXT NOT NULL,
	extraction  JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_blueprint_versions_case ON blueprint_versions(case_id, version DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_archive_case ON extraction_archive(case_id, received_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveBlueprint(ctx context.Context, caseID string, bp *model.Blueprint, documentID string) (*BlueprintVersion, error) {
	blueprintJSON, err := json.Marshal(bp)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal blueprint")
	}

	now := time.Now().UTC()
	var version int
	// The unique (case_id, version) constraint rejects a concurrent writer
	// that raced this subselect; callers serialize merges per case.
	err = s.pool.QueryRow(ctx,
		`INSERT INTO blueprint_versions (id, case_id, version, document_id, conflicts, blueprint, created_at)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM blueprint_versions WHERE case_id = $2), $3, $4, $5, $6)
		 RETURNING version`,
		uuid.New().String(), caseID, documentID, len(bp.MergeConflicts), blueprintJSON, now,
	).Scan(&version)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert blueprint version for case %s", caseID)
	}

	return &BlueprintVersion{
		CaseID:     caseID,
		Version:    version,
		DocumentID: documentID,
		Blueprint:  bp,
		CreatedAt:  now,
	}, nil
}

func (s *PostgresStore) GetLatestBlueprint(ctx context.Context, caseID string) (*BlueprintVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions
		 WHERE case_id = $1 ORDER BY version DESC LIMIT 1`,
		caseID,
	)
	return scanPostgresBlueprintVersion(row)
}

func (s *PostgresStore) GetBlueprintVersion(ctx context.Context, caseID string, version int) (*BlueprintVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT case_id, version, document_id, blueprint, created_at FROM blueprint_versions
		 WHERE case_id = $1 AND version = $2`,
		caseID, version,
	)
	return scanPostgresBlueprintVersion(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context, caseID string) ([]VersionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, document_id, conflicts, created_at FROM blueprint_versions
		 WHERE case_id = $1 ORDER BY version ASC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list versions")
	}
	defer rows.Close()

	var versions []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var docID *string
		if err := rows.Scan(&v.Version, &docID, &v.Conflicts, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		if docID != nil {
			v.DocumentID = *docID
		}
		versions = append(versions, v)
	}
	return versions, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

func (s *PostgresStore) ListCases(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT case_id FROM blueprint_versions ORDER BY case_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var cases []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case id")
		}
		cases = append(cases, id)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: list cases iterate")
}

func (s *PostgresStore) ArchiveExtraction(ctx context.Context, caseID string, extraction model.DocumentExtraction) error {
	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_archive (id, case_id, document_id, extraction, received_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), caseID, extraction.DocumentID, extractionJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: archive extraction %s", extraction.DocumentID)
}

func (s *PostgresStore) ListExtractions(ctx context.Context, caseID string) ([]model.DocumentExtraction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT extraction FROM extraction_archive WHERE case_id = $1 ORDER BY received_at ASC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var extractions []model.DocumentExtraction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		var e model.DocumentExtraction
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extraction")
		}
		extractions = append(extractions, e)
	}
	return extractions, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}

func scanPostgresBlueprintVersion(row pgx.Row) (*BlueprintVersion, error) {
	var v BlueprintVersion
	var docID *string
	var blueprintJSON []byte

	err := row.Scan(&v.CaseID, &v.Version, &docID, &blueprintJSON, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: scan blueprint version")
	}
	if docID != nil {
		v.DocumentID = *docID
	}

	v.Blueprint = &model.Blueprint{}
	if err := json.Unmarshal(blueprintJSON, v.Blueprint); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal blueprint")
	}
	return &v, nil
}
