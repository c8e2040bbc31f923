package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperfetch/hyperfetch/internal/display"
	"github.com/hyperfetch/hyperfetch/internal/proxy"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

func newProxiesCmd() *cobra.Command {
	var refresh bool
	var clear bool
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Show or refresh the validated proxy pool",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			pool := proxy.NewPool(filepath.Join(resolveDataDir(), "proxies.json"))
			if clear {
				pool.ClearCache()
				display.PrintSuccess("Proxy cache cleared")
				return
			}
			if refresh {
				display.PrintInfo("Fetching and validating proxies, this can take a minute")
				if !pool.AwaitRefresh(5 * time.Minute) {
					display.PrintError("Proxy refresh failed")
					return
				}
			}
			display.PrintInfo(fmt.Sprintf("%d cached proxies, %d not marked failed", pool.Count(), pool.WorkingCount()))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch fresh proxies and validate them now")
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the on-disk proxy cache")
	return cmd
}
