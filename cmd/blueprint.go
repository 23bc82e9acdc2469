package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	blueprintCaseID  string
	blueprintVersion int
)

var blueprintCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Print a case blueprint",
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

		var v any
		if blueprintVersion > 0 {
			bv, err := st.GetBlueprintVersion(ctx, blueprintCaseID, blueprintVersion)
			if err != nil {
				return err
			}
			if bv == nil {
				return eris.Errorf("case %s has no version %d", blueprintCaseID, blueprintVersion)
			}
			v = bv
		} else {
			bv, err := st.GetLatestBlueprint(ctx, blueprintCaseID)
			if err != nil {
				return err
			}
			if bv == nil {
				return eris.Errorf("case %s has no blueprint yet", blueprintCaseID)
			}
			v = bv
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

var versionsCaseID string

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List stored blueprint versions for a case",
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

		versions, err := st.ListVersions(ctx, versionsCaseID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(versions)
	},
}

func init() {
	blueprintCmd.Flags().StringVar(&blueprintCaseID, "case", "", "case identifier (required)")
	blueprintCmd.Flags().IntVar(&blueprintVersion, "version", 0, "specific version (default latest)")
	_ = blueprintCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(blueprintCmd)

	versionsCmd.Flags().StringVar(&versionsCaseID, "case", "", "case identifier (required)")
	_ = versionsCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(versionsCmd)
}
