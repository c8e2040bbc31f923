package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperfetch/hyperfetch/internal/display"
	"github.com/hyperfetch/hyperfetch/internal/engine"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved downloads and their progress",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			manager, _, err := setupManager()
			if err != nil {
				display.PrintError(err.Error())
				return
			}
			defer manager.Close()
			tasks := manager.Tasks()
			if len(tasks) == 0 {
				display.PrintInfo("No saved downloads")
				return
			}
			for _, task := range tasks {
				p := task.Snapshot()
				line := fmt.Sprintf("%-11s %s", task.Status(), task.SavePath)
				if p.Total > 0 {
					line += fmt.Sprintf(" (%s of %s)", utils.FormatBytes(uint64(p.Downloaded)), utils.FormatBytes(uint64(p.Total)))
				} else if p.Downloaded > 0 {
					line += fmt.Sprintf(" (%s)", utils.FormatBytes(uint64(p.Downloaded)))
				}
				switch task.Status() {
				case engine.StatusFinished:
					display.PrintSuccess(line)
				case engine.StatusError:
					display.PrintError(line + " " + task.LastError())
				default:
					display.PrintInfo(line)
				}
			}
		},
	}
}
