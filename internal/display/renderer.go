package display

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/hyperfetch/hyperfetch/internal/engine"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

// Renderer draws one line per tracked download and redraws the block in
// place on a ticker. Event callbacks only record state under the mutex;
// all terminal writes happen on the renderer goroutine.
type Renderer struct {
	mu       sync.Mutex
	rows     []*row
	numLines int
	done     chan struct{}
	wg       sync.WaitGroup
}

type row struct {
	name     string
	status   engine.Status
	progress engine.Progress
	message  string
	errMsg   string
	started  time.Time
	ended    time.Time
}

func NewRenderer() *Renderer {
	return &Renderer{done: make(chan struct{})}
}

// Events registers a display row for name and returns the callback set to
// install on the task.
func (r *Renderer) Events(name string) engine.Events {
	cur := &row{name: name, status: engine.StatusQueued, started: time.Now()}
	r.mu.Lock()
	r.rows = append(r.rows, cur)
	r.mu.Unlock()
	return engine.Events{
		OnProgress: func(p engine.Progress) {
			r.mu.Lock()
			cur.progress = p
			r.mu.Unlock()
		},
		OnStatus: func(s engine.Status) {
			r.mu.Lock()
			cur.status = s
			if terminalStatus(s) {
				cur.ended = time.Now()
			}
			r.mu.Unlock()
		},
		OnMessage: func(m string) {
			r.mu.Lock()
			cur.message = m
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			cur.errMsg = msg
			r.mu.Unlock()
		},
	}
}

func (r *Renderer) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.redraw()
			case <-r.done:
				r.redraw()
				return
			}
		}
	}()
}

// Stop halts the ticker after a final redraw and reports whether any row
// ended in error.
func (r *Renderer) Stop() bool {
	close(r.done)
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := false
	for _, cur := range r.rows {
		if cur.status == engine.StatusError {
			failed = true
		}
	}
	return failed
}

func terminalStatus(s engine.Status) bool {
	return s == engine.StatusFinished || s == engine.StatusError || s == engine.StatusStopped
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func progressBar(percent, width int) string {
	filled := max(0, min(percent*width/100, width))
	bar := symbols["bullet"] + strings.Repeat(symbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	return bar + symbols["bullet"]
}

func (r *Renderer) redraw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", r.numLines)
	}
	width := terminalWidth()
	for _, cur := range r.rows {
		fmt.Println(renderRow(cur, width))
	}
	r.numLines = len(r.rows)
}

func renderRow(cur *row, width int) string {
	name := cur.name
	if len(name) > 40 && width < 120 {
		name = name[:37] + "..."
	}
	switch cur.status {
	case engine.StatusFinished:
		elapsed := cur.ended.Sub(cur.started).Round(time.Second)
		detail := fmt.Sprintf("%s in %s", utils.FormatBytes(uint64(cur.progress.Downloaded)), elapsed)
		return fmt.Sprintf("  %s %s %s", successStyle.Render(symbols["pass"]), name, dimStyle.Render(detail))
	case engine.StatusError:
		return fmt.Sprintf("  %s %s %s", errorStyle.Render(symbols["fail"]), name, errorStyle.Render(cur.errMsg))
	case engine.StatusStopped, engine.StatusPaused:
		return fmt.Sprintf("  %s %s %s", warningStyle.Render(symbols["warning"]), name, dimStyle.Render(string(cur.status)))
	case engine.StatusMerging:
		return fmt.Sprintf("  %s %s %s", pendingStyle.Render(symbols["pending"]), name, pendingStyle.Render("merging parts"))
	case engine.StatusDownloading:
		p := cur.progress
		detail := fmt.Sprintf("%3d%% %s %s", p.Percent, symbols["bullet"], utils.FormatSpeed(p.Speed))
		if p.ETA > 0 {
			detail += fmt.Sprintf(" %s ETA %s", symbols["bullet"], utils.FormatETA(p.ETA))
		}
		if cur.message != "" {
			detail += " " + symbols["bullet"] + " " + cur.message
		}
		return fmt.Sprintf("  %s %s %s %s", pendingStyle.Render(symbols["pending"]), name, dimStyle.Render(progressBar(p.Percent, 30)), dimStyle.Render(detail))
	default:
		return fmt.Sprintf("  %s %s %s", infoStyle.Render(symbols["bullet"]), name, dimStyle.Render(string(cur.status)))
	}
}
