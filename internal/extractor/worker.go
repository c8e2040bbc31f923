package extractor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/proxy"
)

var (
	ErrExtractorMissing = errors.New("extractor executable not found")
	ErrNoProxyAvailable = errors.New("no proxies available")
	ErrAllProxiesFailed = errors.New("download failed through all proxies")
	ErrStopped          = errors.New("download stopped")
)

const (
	maxProxyRetries = 8
	minWorkingCount = 3
	refreshWait     = 90 * time.Second

	// A run that "started" but moved less than this is treated as a network
	// failure so it falls back to a proxy instead of surfacing a confusing
	// success. Tunable, not a verified threshold.
	minMeaningfulProgress = 5.0
)

type attemptResult int

const (
	attemptSuccess attemptResult = iota
	attemptFailed
	attemptFatal // extractor error unrelated to the network, no point rotating proxies
	attemptStopped
	attemptMissing
)

// Worker drives the external extractor subprocess for sources that need
// site-specific stream resolution. Attempt order: direct connection, the
// unvalidated default proxy, then up to maxProxyRetries rotated validated
// proxies, with success/failure fed back into the pool.
type Worker struct {
	URL      string
	SavePath string
	Policy   SelectionPolicy
	Pool     *proxy.Pool
	Binary   string // extractor executable, default yt-dlp

	OnProgress func(percent int)
	OnStatus   func(status string)

	stopped atomic.Bool

	mu         sync.Mutex
	cmd        *exec.Cmd
	actualPath string // destination reported by the extractor
	fatalErr   error
}

func NewWorker(url, savePath string, policy SelectionPolicy, pool *proxy.Pool) *Worker {
	return &Worker{
		URL:      url,
		SavePath: savePath,
		Policy:   policy,
		Pool:     pool,
		Binary:   "yt-dlp",
	}
}

// Stop requests termination. The child process cannot observe an in-process
// flag, so it is killed outright.
func (w *Worker) Stop() {
	w.stopped.Store(true)
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// OutputPath returns the verified path of the downloaded file after a
// successful Run.
func (w *Worker) OutputPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.actualPath
}

// Run executes the attempt ladder and blocks until terminal success or
// failure. Every failure class maps to a distinct sentinel error.
func (w *Worker) Run() error {
	w.status("Trying direct connection...")
	switch w.attempt("") {
	case attemptSuccess:
		return nil
	case attemptStopped:
		return ErrStopped
	case attemptMissing:
		return ErrExtractorMissing
	case attemptFatal:
		return w.fatal()
	}

	// Direct failed: the default proxy skips the validation round-trip, so
	// it goes first.
	log.Debug().Str("op", "extractor/worker").Msg("Direct connection failed, trying default proxy")
	w.status("Trying built-in proxy...")
	switch w.attempt(w.Pool.DefaultProxy()) {
	case attemptSuccess:
		return nil
	case attemptStopped:
		return ErrStopped
	case attemptFatal:
		return w.fatal()
	}

	w.status("Direct blocked, finding proxies...")
	if w.Pool.NeedsRefresh() || w.Pool.WorkingCount() < minWorkingCount {
		w.status("Fetching fresh proxies...")
		w.Pool.AwaitRefresh(refreshWait)
	}

	for attempt := 0; attempt < maxProxyRetries; attempt++ {
		if w.stopped.Load() {
			return ErrStopped
		}
		proxyURL := w.Pool.Get()
		if proxyURL == "" {
			w.status("No proxies available")
			return ErrNoProxyAvailable
		}
		w.status(fmt.Sprintf("Proxy %d/%d: %s...", attempt+1, maxProxyRetries, shortProxy(proxyURL)))
		log.Debug().Str("op", "extractor/worker").Msgf("Attempt %d with proxy %s", attempt+1, proxyURL)
		switch w.attempt(proxyURL) {
		case attemptSuccess:
			w.Pool.MarkSuccess(proxyURL)
			return nil
		case attemptStopped:
			return ErrStopped
		case attemptFatal:
			w.Pool.MarkFailed(proxyURL)
			return w.fatal()
		default:
			w.Pool.MarkFailed(proxyURL)
		}
	}
	return ErrAllProxiesFailed
}

func (w *Worker) fatal() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fatalErr != nil {
		return w.fatalErr
	}
	return ErrAllProxiesFailed
}

// attempt launches one extractor run, parsing its line-oriented output for
// the destination marker, progress, and network-failure indicators.
func (w *Worker) attempt(proxyURL string) attemptResult {
	if w.stopped.Load() {
		return attemptStopped
	}
	saveDir := filepath.Dir(w.SavePath)
	saveName := strings.TrimSuffix(filepath.Base(w.SavePath), ".mp4")
	outputTemplate := filepath.Join(saveDir, saveName+".%(ext)s")

	args := []string{
		"--no-playlist",
		"--newline",
		"--progress",
		"--force-overwrites",
		"--no-continue",
		"--socket-timeout", "30",
		"--retries", "3",
		"--fragment-retries", "3",
		"--retry-sleep", "2",
		"-f", w.Policy.Selector(),
		"--merge-output-format", "mp4",
		"-o", outputTemplate,
	}
	if proxyURL != "" {
		args = append(args, "--proxy", proxyURL)
	}
	args = append(args, w.URL)

	// A stale file from a previous attempt would pass verification.
	os.Remove(filepath.Join(saveDir, saveName+".mp4"))

	cmd := exec.Command(w.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return attemptFailed
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return attemptFailed
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return attemptMissing
		}
		log.Error().Str("op", "extractor/worker").Err(err).Msg("Error starting extractor")
		return attemptFailed
	}
	w.mu.Lock()
	w.cmd = cmd
	w.mu.Unlock()

	lines := make(chan string, 64)
	var readers sync.WaitGroup
	for _, pipe := range []io.Reader{stdout, stderr} {
		readers.Add(1)
		go func(r io.Reader) {
			defer readers.Done()
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					lines <- line
				}
			}
		}(pipe)
	}
	go func() {
		readers.Wait()
		close(lines)
	}()

	started := false
	lastProgress := 0.0
	networkError := false
	gaveUp := false

	for line := range lines {
		if w.stopped.Load() {
			cmd.Process.Kill()
			for range lines {
			}
			cmd.Wait()
			return attemptStopped
		}
		log.Debug().Str("op", "extractor/worker").Msgf("yt-dlp: %s", line)
		if isNetworkErrorLine(line) {
			networkError = true
		}
		if isGivingUpLine(line) {
			gaveUp = true
		}
		if path, ok := parseDestination(line); ok {
			started = true
			w.mu.Lock()
			w.actualPath = path
			w.mu.Unlock()
		}
		if pct, ok := parseProgress(line); ok {
			started = true
			if pct > lastProgress {
				lastProgress = pct
				w.progress(int(pct))
			}
		}
		if isMergerLine(line) {
			w.progress(99)
		}
	}

	err = cmd.Wait()
	w.mu.Lock()
	w.cmd = nil
	w.mu.Unlock()
	if w.stopped.Load() {
		return attemptStopped
	}

	exitCode := cmd.ProcessState.ExitCode()
	log.Debug().Str("op", "extractor/worker").Msgf(
		"Extractor exit %d (network=%v gaveUp=%v started=%v progress=%.0f%%)",
		exitCode, networkError, gaveUp, started, lastProgress)

	if err != nil || exitCode != 0 {
		// Retry with a proxy on anything that smells like the network; a run
		// that barely moved counts too.
		if networkError || gaveUp || !started || lastProgress < minMeaningfulProgress {
			return attemptFailed
		}
		log.Error().Str("op", "extractor/worker").Msgf("Extractor failed (exit %d)", exitCode)
		w.mu.Lock()
		w.fatalErr = fmt.Errorf("extractor failed (exit %d)", exitCode)
		w.mu.Unlock()
		return attemptFatal
	}

	path, size, ok := findOutputFile(w.SavePath, w.OutputPath())
	if !ok {
		log.Warn().Str("op", "extractor/worker").Msg("Extractor exited 0 but output file is missing or too small")
		return attemptFailed
	}
	w.mu.Lock()
	w.actualPath = path
	w.mu.Unlock()
	log.Info().Str("op", "extractor/worker").Msgf("Extractor download complete: %s (%d bytes)", path, size)
	w.progress(100)
	return attemptSuccess
}

func (w *Worker) status(s string) {
	if w.OnStatus != nil {
		w.OnStatus(s)
	}
}

func (w *Worker) progress(pct int) {
	if w.OnProgress != nil {
		w.OnProgress(pct)
	}
}

func shortProxy(url string) string {
	if _, after, found := strings.Cut(url, "://"); found {
		url = after
	}
	if len(url) > 25 {
		return url[:25]
	}
	return url
}
