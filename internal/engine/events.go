package engine

import "sync/atomic"

// Status is the lifecycle state of a DownloadTask. The string values are
// also the persisted wire form.
type Status string

const (
	StatusIdle        Status = "Idle"
	StatusQueued      Status = "Queued"
	StatusDownloading Status = "Downloading"
	StatusPaused      Status = "Paused"
	StatusStopped     Status = "Stopped"
	StatusMerging     Status = "Merging"
	StatusFinished    Status = "Finished"
	StatusError       Status = "Error"
)

// Progress is one consolidated progress event aggregated across all workers
// of a task.
type Progress struct {
	Percent    int
	Speed      float64 // bytes per second
	ETA        float64 // seconds, 0 when unknown
	Downloaded int64
	Total      int64
}

// Events is the observer surface a task emits on. All callbacks are invoked
// from the task's coordination goroutine; subscribers must not block.
type Events struct {
	OnProgress func(Progress)
	OnStatus   func(Status)
	OnMessage  func(string) // transient human-readable status lines
	OnFinished func()
	OnError    func(message string)
}

func (e Events) progress(p Progress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}

func (e Events) status(s Status) {
	if e.OnStatus != nil {
		e.OnStatus(s)
	}
}

func (e Events) message(m string) {
	if e.OnMessage != nil {
		e.OnMessage(m)
	}
}

func (e Events) finished() {
	if e.OnFinished != nil {
		e.OnFinished()
	}
}

func (e Events) error(msg string) {
	if e.OnError != nil {
		e.OnError(msg)
	}
}

// control carries the cooperative pause/stop flags shared between a task and
// its workers. Workers poll it at every buffer boundary, which bounds
// reactivity to one buffer read; there is no hard interruption.
type control struct {
	paused  atomic.Bool
	stopped atomic.Bool
}

func (c *control) halted() bool {
	return c.paused.Load() || c.stopped.Load()
}
