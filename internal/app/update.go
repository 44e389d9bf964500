package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <component> [version|latest]",
	Short: "Update a component to a target version",
	Long: `Update one component to the given version, or to the latest release when
no version is given.

The update takes a backup first, verifies the downloaded artifact, and only
commits the new version once the service is confirmed running. Failures
after the backup roll the component back to the previous version. Updating
a component already at the target version is a no-op.`,
	Example: `  overhaul update frontend
  overhaul update backend latest
  overhaul update backend v1.4.2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUpdate,
}

func init() {
	RootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	spec := "latest"
	if len(args) == 2 {
		spec = args[1]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		// History is an audit log; updating still works without it.
		fmt.Fprintf(os.Stderr, "warning: update history unavailable: %v\n", err)
		st = nil
	}
	if st != nil {
		defer st.Close()
	}

	return newUpdater(cfg, st).Update(args[0], spec)
}
