package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dossier-cli/internal/model"
)

var (
	conflictsCaseID      string
	conflictsNeedsReview bool
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List merge conflicts recorded for a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		latest, err := st.GetLatestBlueprint(ctx, conflictsCaseID)
		if err != nil {
			return err
		}
		if latest == nil {
			return eris.Errorf("case %s has no blueprint yet", conflictsCaseID)
		}

		conflicts := filterConflicts(latest.Blueprint.MergeConflicts, conflictsNeedsReview)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conflicts)
	},
}

// filterConflicts optionally narrows the ledger to entries flagged for
// human review. Returns an empty slice rather than nil so the output is
// always a JSON array.
func filterConflicts(all []model.ConflictRecord, needsReviewOnly bool) []model.ConflictRecord {
	filtered := make([]model.ConflictRecord, 0, len(all))
	for _, c := range all {
		if needsReviewOnly && !c.NeedsReview {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsCaseID, "case", "", "case identifier (required)")
	conflictsCmd.Flags().BoolVar(&conflictsNeedsReview, "needs-review", false, "only conflicts flagged for review")
	_ = conflictsCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(conflictsCmd)
}
