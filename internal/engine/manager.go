package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/proxy"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

const (
	downloadsFileName = "downloads.json"
	autosaveInterval  = 30 * time.Second
	stateVersion      = 1
)

// persistedTask is the on-disk shape of one task.
type persistedTask struct {
	URL        string `json:"url"`
	SavePath   string `json:"save_path"`
	Status     Status `json:"status"`
	FileSize   int64  `json:"file_size"`
	Downloaded int64  `json:"downloaded_bytes"`
}

type persistedState struct {
	Version   int             `json:"version"`
	Downloads []persistedTask `json:"downloads"`
}

// Manager owns the task collection, persists it across restarts, and batch
// controls start/pause. Construct one per process and pass it where needed;
// there is no global instance.
type Manager struct {
	pool      *proxy.Pool
	clientCfg utils.HTTPClientConfig
	stateFile string

	mu    sync.Mutex
	tasks []*Task

	saveCh chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager restores persisted tasks from dataDir and starts the autosave
// timer. Tasks persisted mid-download come back as Stopped: part files are
// not re-validated across a process restart, so they wait for an explicit
// resume.
func NewManager(dataDir string, pool *proxy.Pool, clientCfg utils.HTTPClientConfig) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %v", err)
	}
	m := &Manager{
		pool:      pool,
		clientCfg: clientCfg,
		stateFile: filepath.Join(dataDir, downloadsFileName),
		saveCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	m.loadState()
	m.wg.Add(1)
	go m.autosaveLoop()
	return m, nil
}

// Add creates a task for url, wiring persistence into its status
// transitions and chaining the caller's events through.
func (m *Manager) Add(url, savePath string, opts TaskOptions, events Events, autoStart bool) (*Task, error) {
	if m.IsDuplicate(url) {
		return nil, fmt.Errorf("download already exists for %s", url)
	}
	task := NewTask(url, savePath, m.pool, m.clientCfg, opts)
	m.Attach(task, events)
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	if autoStart {
		task.Start()
	} else {
		task.MarkQueued()
	}
	m.requestSave()
	return task, nil
}

// Attach chains persistence onto the task's own event stream before the
// caller's callbacks.
func (m *Manager) Attach(task *Task, events Events) {
	task.SetEvents(Events{
		OnProgress: events.OnProgress,
		OnMessage:  events.OnMessage,
		OnStatus: func(s Status) {
			m.requestSave()
			if events.OnStatus != nil {
				events.OnStatus(s)
			}
		},
		OnFinished: func() {
			m.requestSave()
			if events.OnFinished != nil {
				events.OnFinished()
			}
		},
		OnError: func(msg string) {
			m.requestSave()
			if events.OnError != nil {
				events.OnError(msg)
			}
		},
	})
}

func (m *Manager) IsDuplicate(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.URL == url {
			return true
		}
	}
	return false
}

func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Remove permanently deletes the task, its temp directory, and any
// destination file.
func (m *Manager) Remove(task *Task) {
	m.mu.Lock()
	for i, t := range m.tasks {
		if t == task {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	task.Delete()
	m.requestSave()
}

func (m *Manager) StartAll() {
	for _, t := range m.Tasks() {
		switch t.Status() {
		case StatusPaused, StatusStopped, StatusIdle, StatusQueued:
			t.Resume()
		}
	}
}

func (m *Manager) PauseAll() {
	for _, t := range m.Tasks() {
		if t.Status() == StatusDownloading {
			t.Pause()
		}
	}
}

// Close flushes state and stops the autosave loop. Active workers are left
// to their tasks; callers pause or wait as appropriate.
func (m *Manager) Close() {
	close(m.done)
	m.wg.Wait()
	m.SaveState()
}

func (m *Manager) autosaveLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SaveState()
		case <-m.saveCh:
			m.SaveState()
		case <-m.done:
			return
		}
	}
}

// requestSave coalesces save requests from status transitions; the autosave
// loop is the single writer of the state file.
func (m *Manager) requestSave() {
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// SaveState writes the task list atomically (temp file + rename) so a crash
// mid-write leaves the previous state readable.
func (m *Manager) SaveState() {
	state := persistedState{Version: stateVersion}
	for _, t := range m.Tasks() {
		snap := t.Snapshot()
		state.Downloads = append(state.Downloads, persistedTask{
			URL:        t.URL,
			SavePath:   t.SavePath,
			Status:     t.Status(),
			FileSize:   snap.Total,
			Downloaded: snap.Downloaded,
		})
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	tmp := m.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Warn().Str("op", "engine/manager").Err(err).Msg("Failed to write state file")
		return
	}
	if err := os.Rename(tmp, m.stateFile); err != nil {
		log.Warn().Str("op", "engine/manager").Err(err).Msg("Failed to finalize state file")
	}
}

// loadState rehydrates tasks from disk. Unreadable state starts empty
// (last-good semantics come from the atomic write on the save side).
func (m *Manager) loadState() {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn().Str("op", "engine/manager").Err(err).Msg("Ignoring unreadable state file")
		return
	}
	for _, p := range state.Downloads {
		if p.URL == "" || p.SavePath == "" {
			continue
		}
		task := NewTask(p.URL, p.SavePath, m.pool, m.clientCfg, TaskOptions{FileSize: p.FileSize})
		task.mu.Lock()
		task.status = p.Status
		task.downloaded = p.Downloaded
		// An in-flight download cannot be trusted across a restart without
		// re-validating part files; surface it as stopped pending resume.
		if task.status == StatusDownloading || task.status == StatusMerging {
			task.status = StatusStopped
		}
		task.mu.Unlock()
		m.Attach(task, Events{})
		m.tasks = append(m.tasks, task)
	}
	log.Debug().Str("op", "engine/manager").Msgf("Restored %d downloads", len(m.tasks))
}
