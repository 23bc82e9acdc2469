package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/merge"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

var mergeCaseID string

var mergeCmd = &cobra.Command{
	Use:   "merge <extraction.json> [more.json ...]",
	Short: "Merge document extractions into a case blueprint",
	Args:  cobra.MinimumNArgs(1),
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

		eng, err := initEngine()
		if err != nil {
			return err
		}

		summary, err := mergeFiles(ctx, st, eng, mergeCaseID, args)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeCaseID, "case", "", "case identifier (required)")
	_ = mergeCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(mergeCmd)
}

// mergeSummary is the stdout report of one merge invocation.
type mergeSummary struct {
	CaseID    string                 `json:"case_id"`
	Version   int                    `json:"version"`
	Documents []string               `json:"documents"`
	Stats     model.MergeStats       `json:"stats"`
	Conflicts []model.ConflictRecord `json:"conflicts,omitempty"`
}

// mergeFiles folds the extraction files into the case's latest blueprint in
// argument order and persists one new version per document.
func mergeFiles(ctx context.Context, st store.Store, eng *merge.Engine, caseID string, paths []string) (*mergeSummary, error) {
	current, err := latestOrNewBlueprint(ctx, st, caseID)
	if err != nil {
		return nil, err
	}

	summary := &mergeSummary{CaseID: caseID}
	for _, path := range paths {
		extraction, err := readExtraction(path)
		if err != nil {
			return nil, err
		}

		if err := st.ArchiveExtraction(ctx, caseID, *extraction); err != nil {
			return nil, err
		}

		result, err := eng.MergeDocumentExtraction(current, *extraction)
		if err != nil {
			return nil, eris.Wrapf(err, "merge %s", extraction.DocumentID)
		}

		version, err := st.SaveBlueprint(ctx, caseID, result.Blueprint, extraction.DocumentID)
		if err != nil {
			return nil, err
		}

		zap.L().Info("blueprint version saved",
			zap.String("case_id", caseID),
			zap.Int("version", version.Version),
			zap.String("document_id", extraction.DocumentID),
		)

		current = result.Blueprint
		summary.Version = version.Version
		summary.Documents = append(summary.Documents, extraction.DocumentID)
		summary.Stats.ValuesAdded += result.Stats.ValuesAdded
		summary.Stats.ValuesUpdated += result.Stats.ValuesUpdated
		summary.Stats.ValuesSkipped += result.Stats.ValuesSkipped
		summary.Stats.ConflictsDetected += result.Stats.ConflictsDetected
		summary.Conflicts = append(summary.Conflicts, result.Conflicts...)
	}
	return summary, nil
}

func readExtraction(path string) (*model.DocumentExtraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read extraction %s", path)
	}
	var e model.DocumentExtraction
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrapf(err, "parse extraction %s", path)
	}
	if e.DocumentID == "" {
		return nil, eris.Errorf("extraction %s: document_id is required", path)
	}
	return &e, nil
}
