package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every component to the latest release",
	Long: `Update all managed components to their latest releases, in the configured
order: components whose failure is least disruptive first, the most
foundational component last. A failed component does not stop the rest
from being attempted; the exit code is non-zero if any component failed.`,
	Example: `  overhaul update-all`,
	Args:    cobra.NoArgs,
	RunE:    runUpdateAll,
}

func init() {
	RootCmd.AddCommand(updateAllCmd)
}

func runUpdateAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: update history unavailable: %v\n", err)
		st = nil
	}
	if st != nil {
		defer st.Close()
	}

	if err := newUpdater(cfg, st).UpdateAll(); err != nil {
		return fmt.Errorf("update-all finished with failures")
	}
	return nil
}
