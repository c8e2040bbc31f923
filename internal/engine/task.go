package engine

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/extractor"
	"github.com/hyperfetch/hyperfetch/internal/proxy"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

const headTimeout = 10 * time.Second

// User-facing messages for the extractor's terminal failure kinds.
const (
	msgExtractorMissing = "yt-dlp is not installed. Install it to download from video sites: pip install yt-dlp"
	msgNoProxy          = "No working proxies available. Your network blocks the video source and every proxy source."
	msgAllProxies       = "Download failed: tried direct connection and multiple proxies, none worked."
)

// TaskOptions carries the optional hints a new-download request may include.
type TaskOptions struct {
	Connections int
	FileSize    int64 // advisory size hint, re-resolved when zero
	Quality     string
	Itag        string
	Extractor   string // extractor binary override, for tests
}

// Task is the per-URL download state machine. It selects a strategy
// (range-parallel, single-stream, or external extractor), owns a temp
// directory of part files, and aggregates worker progress into consolidated
// events. At most one worker set is active at a time.
type Task struct {
	ID          string
	URL         string
	SavePath    string
	Connections int
	Quality     string
	Itag        string
	AddedTime   time.Time

	pool      *proxy.Pool
	clientCfg utils.HTTPClientConfig
	extBinary string
	events    Events

	mu            sync.Mutex
	status        Status
	fileSize      int64
	downloaded    int64
	chunkProgress map[int]int64
	startTime     time.Time
	lastError     string
	ctl           *control
	ext           *extractor.Worker
	tempDir       string

	running sync.WaitGroup
}

func NewTask(url, savePath string, pool *proxy.Pool, clientCfg utils.HTTPClientConfig, opts TaskOptions) *Task {
	connections := opts.Connections
	if connections <= 0 {
		connections = utils.DefaultConnections
	}
	return &Task{
		ID:            uuid.NewString(),
		URL:           url,
		SavePath:      savePath,
		Connections:   connections,
		Quality:       opts.Quality,
		Itag:          opts.Itag,
		AddedTime:     time.Now(),
		pool:          pool,
		clientCfg:     clientCfg,
		extBinary:     opts.Extractor,
		status:        StatusIdle,
		fileSize:      opts.FileSize,
		chunkProgress: make(map[int]int64),
		tempDir:       utils.TempDirFor(savePath),
	}
}

// SetEvents installs the observer callbacks. Must be called before Start.
func (t *Task) SetEvents(events Events) {
	t.events = events
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// Snapshot returns the current consolidated progress.
func (t *Task) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Task) progressLocked() Progress {
	p := Progress{Downloaded: t.downloaded, Total: t.fileSize}
	if t.fileSize > 0 {
		p.Percent = int(t.downloaded * 100 / t.fileSize)
	}
	elapsed := time.Since(t.startTime).Seconds()
	if !t.startTime.IsZero() && elapsed > 0 {
		p.Speed = float64(t.downloaded) / elapsed
	}
	if p.Speed > 0 && t.fileSize > t.downloaded {
		p.ETA = float64(t.fileSize-t.downloaded) / p.Speed
	}
	return p
}

// Start begins or resumes the download. Safe to call from any non-active
// state; existing part files are picked up and only the remaining sub-range
// of each chunk is re-requested.
func (t *Task) Start() {
	t.mu.Lock()
	if t.status == StatusDownloading || t.status == StatusMerging || t.status == StatusFinished {
		t.mu.Unlock()
		return
	}
	t.status = StatusDownloading
	t.startTime = time.Now()
	t.downloaded = 0
	t.chunkProgress = make(map[int]int64)
	t.lastError = ""
	ctl := &control{}
	t.ctl = ctl
	t.mu.Unlock()

	t.events.status(StatusDownloading)
	t.running.Add(1)
	go func() {
		defer t.running.Done()
		t.run(ctl)
	}()
}

// Pause requests a cooperative halt, keeping all partial data for resume.
func (t *Task) Pause() {
	t.halt(StatusPaused, func(c *control) { c.paused.Store(true) })
}

// Stop is Pause with a different user-visible label.
func (t *Task) Stop() {
	t.halt(StatusStopped, func(c *control) { c.stopped.Store(true) })
}

// halt flips an active download to a user-halted state. Merging is past the
// point of no return: the parts are already being consumed, so halt is a
// no-op there and the task finishes normally.
func (t *Task) halt(to Status, flag func(*control)) {
	t.mu.Lock()
	if t.status != StatusDownloading {
		t.mu.Unlock()
		return
	}
	t.status = to
	if t.ctl != nil {
		flag(t.ctl)
	}
	ext := t.ext
	t.mu.Unlock()
	if ext != nil {
		// The subprocess cannot poll our flag.
		ext.Stop()
	}
	t.events.status(to)
}

// Resume restarts the download from any halted state.
func (t *Task) Resume() {
	switch t.Status() {
	case StatusPaused, StatusStopped, StatusQueued, StatusIdle, StatusError:
		t.Start()
	}
}

// Wait blocks until the active worker set (if any) has wound down.
func (t *Task) Wait() {
	t.running.Wait()
}

// Delete stops the task and removes the temp directory and destination
// file. Tolerant of files that are already gone.
func (t *Task) Delete() {
	t.Stop()
	t.running.Wait()
	os.RemoveAll(t.tempDir)
	if err := os.Remove(t.SavePath); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "engine/task").Err(err).Msgf("Could not remove %s", t.SavePath)
	}
}

// MarkQueued labels a freshly added task that was not auto-started.
func (t *Task) MarkQueued() {
	t.mu.Lock()
	t.status = StatusQueued
	t.mu.Unlock()
	t.events.status(StatusQueued)
}

func (t *Task) run(ctl *control) {
	if isVideoHostURL(t.URL) {
		t.runExtractor()
		return
	}

	if err := os.MkdirAll(t.tempDir, 0755); err != nil {
		t.fail(fmt.Sprintf("error creating temp directory: %v", err))
		return
	}

	size := t.resolveSize()
	t.mu.Lock()
	t.fileSize = size
	t.mu.Unlock()
	if size <= 0 {
		t.runSingle(ctl)
		return
	}
	t.runChunked(ctl, size)
}

// resolveSize probes the server for the total size. Failure is not fatal:
// an unknown size just routes to the single-stream strategy.
func (t *Task) resolveSize() int64 {
	t.mu.Lock()
	known := t.fileSize
	t.mu.Unlock()
	if known > 0 {
		return known
	}
	cfg := t.clientCfg
	cfg.Timeout = headTimeout
	client := utils.NewHTTPClient(cfg)
	req, err := http.NewRequest("HEAD", t.URL, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Str("op", "engine/task").Err(err).Msg("HEAD request failed, falling back to single stream")
		return 0
	}
	defer resp.Body.Close()
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}

func isVideoHostURL(url string) bool {
	return strings.Contains(url, "youtube.com/watch") ||
		strings.Contains(url, "youtu.be/") ||
		strings.Contains(url, "music.youtube.com") ||
		strings.Contains(url, "googlevideo.com")
}

func (t *Task) fail(msg string) {
	t.mu.Lock()
	t.status = StatusError
	t.lastError = msg
	t.ext = nil
	t.mu.Unlock()
	log.Error().Str("op", "engine/task").Msgf("Task failed for %s: %s", t.URL, msg)
	t.events.status(StatusError)
	t.events.error(msg)
}

func (t *Task) finish() {
	t.mu.Lock()
	t.status = StatusFinished
	t.ext = nil
	p := t.progressLocked()
	t.mu.Unlock()
	t.events.progress(p)
	t.events.status(StatusFinished)
	t.events.finished()
}

// haltedByUser reports whether a worker wind-down was caused by Pause/Stop
// rather than by an internal failure.
func (t *Task) haltedByUser() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusPaused || t.status == StatusStopped
}
