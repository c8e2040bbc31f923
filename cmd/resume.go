package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hyperfetch/hyperfetch/internal/display"
	"github.com/hyperfetch/hyperfetch/internal/engine"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume saved downloads that are not finished",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			manager, renderer, err := setupManager()
			if err != nil {
				display.PrintError(err.Error())
				os.Exit(1)
			}
			var resumable []*engine.Task
			for _, task := range manager.Tasks() {
				switch task.Status() {
				case engine.StatusStopped, engine.StatusPaused, engine.StatusQueued, engine.StatusError:
					resumable = append(resumable, task)
				}
			}
			if len(resumable) == 0 {
				display.PrintInfo("Nothing to resume")
				manager.Close()
				return
			}
			renderer.Start()
			var wg sync.WaitGroup
			sem := make(chan struct{}, max(numLinks, 1))
			for _, task := range resumable {
				task := task
				manager.Attach(task, renderer.Events(filepath.Base(task.SavePath)))
				wg.Add(1)
				go func() {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()
					task.Resume()
					task.Wait()
				}()
			}
			wg.Wait()
			manager.Close()
			if failed := renderer.Stop(); failed {
				fmt.Println()
				display.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}
}
