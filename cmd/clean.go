package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperfetch/hyperfetch/internal/display"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary part directories",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) > 0 {
				dir = filepath.Dir(args[0])
			}
			if err := utils.CleanTempDirs(dir); err != nil {
				display.PrintError("Error cleaning up temporary files")
				return
			}
			display.PrintSuccess("Temporary files cleaned up")
		},
	}
}
