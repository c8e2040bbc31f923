package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperfetch/hyperfetch/internal/display"
	"github.com/hyperfetch/hyperfetch/internal/engine"
	"github.com/hyperfetch/hyperfetch/internal/proxy"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

var (
	output        string
	connections   int
	quality       string
	itag          string
	urlListFile   string
	numLinks      int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	dataDir       string
	noResume      bool
	debug         bool
)

var HyperfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "hyperfetch [url]",
	Short:   "Hyperfetch is a multi-strategy CLI download manager",
	Version: HyperfetchVersion,
	Args:    cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if len(args) == 0 && urlListFile == "" {
			display.PrintError("No URL or URL list provided")
			os.Exit(1)
		}
		if urlListFile != "" && len(args) > 0 {
			display.PrintError("Cannot specify url argument and --urllist together, choose one")
			os.Exit(1)
		}
		var entries []utils.DownloadEntry
		if len(args) > 0 {
			if _, err := u.Parse(args[0]); err != nil {
				display.PrintError("Invalid URL format")
				os.Exit(1)
			}
			entries = []utils.DownloadEntry{{URL: args[0], OutputPath: output, Quality: quality, Itag: itag}}
		} else {
			var err error
			entries, err = utils.ReadDownloadList(urlListFile)
			if err != nil {
				display.PrintError("Failed to read URL list file")
				os.Exit(1)
			}
		}
		manager, renderer, err := setupManager()
		if err != nil {
			display.PrintError(err.Error())
			os.Exit(1)
		}
		renderer.Start()
		var wg sync.WaitGroup
		sem := make(chan struct{}, max(numLinks, 1))
		for _, entry := range entries {
			savePath := entry.OutputPath
			if savePath == "" {
				savePath = inferOutputPath(entry.URL)
			}
			if _, err := os.Stat(savePath); err == nil {
				savePath = utils.RenewOutputPath(savePath)
			}
			if noResume {
				os.RemoveAll(utils.TempDirFor(savePath))
			}
			opts := engine.TaskOptions{Connections: connections, Quality: entry.Quality, Itag: entry.Itag}
			task, err := manager.Add(entry.URL, savePath, opts, renderer.Events(filepath.Base(savePath)), false)
			if err != nil {
				display.PrintWarning(err.Error())
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				task.Start()
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

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupManager builds the shared proxy pool and task manager used by the
// download-running commands.
func setupManager() (*engine.Manager, *display.Renderer, error) {
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	// Lift auth embedded in the proxy URL into explicit credentials
	parsedProxy, err := u.Parse(proxyURL)
	if err == nil && parsedProxy.User != nil && proxyUsername == "" {
		proxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			proxyPassword = password
		}
		parsedProxy.User = nil
		proxyURL = parsedProxy.String()
	}
	clientCfg := utils.HTTPClientConfig{
		Timeout:       timeout,
		KATimeout:     kaTimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: proxyUsername,
		ProxyPassword: proxyPassword,
		UserAgent:     userAgent,
		Headers:       utils.ParseHeaderArgs(headers),
	}
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err == nil && debug {
		// Debug logs go to a file so they don't fight the live display.
		if f, ferr := os.OpenFile(filepath.Join(dir, utils.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); ferr == nil {
			utils.SetLogOutput(f)
		}
	}
	pool := proxy.NewPool(filepath.Join(dir, "proxies.json"))
	manager, err := engine.NewManager(dir, pool, clientCfg)
	if err != nil {
		return nil, nil, err
	}
	return manager, display.NewRenderer(), nil
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hyperfetch"
	}
	return filepath.Join(home, ".hyperfetch")
}

// inferOutputPath derives a file name from the URL path, falling back to
// "download" for bare hosts and query-only URLs.
func inferOutputPath(rawURL string) string {
	parsed, err := u.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := filepath.Base(parsed.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "?") {
		return "download"
	}
	return name
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (inferred from URL if not provided)")
	rootCmd.Flags().StringVarP(&urlListFile, "urllist", "l", "", "Path to YAML file containing URLs and output paths")
	rootCmd.Flags().IntVarP(&numLinks, "workers", "w", 1, "Number of links to download in parallel")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of connections per download")
	rootCmd.Flags().StringVarP(&quality, "quality", "q", "", "Preferred video quality for extractor downloads (eg. 1080p, 720p)")
	rootCmd.Flags().StringVar(&itag, "itag", "", "Exact format id for extractor downloads (overrides --quality)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", utils.DefaultTimeout, "Connection timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", utils.DefaultKATimeout, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('randomize' picks a browser agent)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL for direct downloads (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for download state and proxy cache (default ~/.hyperfetch)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().BoolVar(&noResume, "no-resume", false, "Discard existing part files and download from scratch")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newProxiesCmd())
	rootCmd.AddCommand(newCleanCmd())
}
