package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/authority"
	"github.com/sells-group/dossier-cli/internal/merge"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEngine() (*merge.Engine, error) {
	ranking := authority.Default()
	if cfg.Merge.AuthorityFile != "" {
		r, err := authority.Load(cfg.Merge.AuthorityFile)
		if err != nil {
			return nil, eris.Wrap(err, "load authority ranking")
		}
		ranking = r
	}
	return merge.New(ranking), nil
}

// latestOrNewBlueprint returns the newest stored blueprint for the case, or
// a fresh one when the case has no history yet.
func latestOrNewBlueprint(ctx context.Context, st store.Store, caseID string) (*model.Blueprint, error) {
	latest, err := st.GetLatestBlueprint(ctx, caseID)
	if err != nil {
		return nil, eris.Wrapf(err, "load blueprint for case %s", caseID)
	}
	if latest == nil {
		return model.NewBlueprint(), nil
	}
	return latest.Blueprint, nil
}
