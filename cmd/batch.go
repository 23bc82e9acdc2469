package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dossier-cli/internal/merge"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

var batchCases []string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rebuild case blueprints by replaying archived extractions",
	Long:  "Replays each case's archived extractions in arrival order against a fresh blueprint and stores the result as a new version. Useful after changing the authority ranking.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("merge"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		eng, err := initEngine()
		if err != nil {
			return err
		}

		caseIDs := batchCases
		if len(caseIDs) == 0 {
			caseIDs, err = st.ListCases(ctx)
			if err != nil {
				return err
			}
		}

		return processBatch(ctx, st, eng, caseIDs, cfg.Batch.MaxConcurrentCases)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchCases, "case", nil, "case identifiers (default: all stored cases)")
	rootCmd.AddCommand(batchCmd)
}

// processBatch replays cases concurrently. Cases are independent, so they
// fan out across workers; within a case the merges stay sequential.
func processBatch(ctx context.Context, st store.Store, eng *merge.Engine, caseIDs []string, concurrency int) error {
	if len(caseIDs) == 0 {
		zap.L().Info("no cases to replay")
		return nil
	}

	zap.L().Info("replaying cases",
		zap.Int("cases", len(caseIDs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, caseID := range caseIDs {
		g.Go(func() error {
			log := zap.L().With(zap.String("case_id", caseID))

			version, err := replayCase(gctx, st, eng, caseID)
			if err != nil {
				failed.Add(1)
				log.Error("replay failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}

			succeeded.Add(1)
			log.Info("replay complete", zap.Int("version", version))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch replay")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// replayCase folds the case's archived extractions into a fresh blueprint
// and persists it as the next version. Returns the stored version number.
func replayCase(ctx context.Context, st store.Store, eng *merge.Engine, caseID string) (int, error) {
	extractions, err := st.ListExtractions(ctx, caseID)
	if err != nil {
		return 0, err
	}
	if len(extractions) == 0 {
		return 0, eris.Errorf("case %s has no archived extractions", caseID)
	}

	rebuilt, err := eng.MergeMultipleExtractions(model.NewBlueprint(), extractions)
	if err != nil {
		return 0, err
	}

	lastDoc := extractions[len(extractions)-1].DocumentID
	version, err := st.SaveBlueprint(ctx, caseID, rebuilt, lastDoc)
	if err != nil {
		return 0, err
	}
	return version.Version, nil
}
