package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/extractor"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

// runChunked spawns one chunk worker per byte range and aggregates their
// reports until every worker has been joined. Part files that are already
// complete are skipped entirely; partial ones shrink their worker's range.
func (t *Task) runChunked(ctl *control, fileSize int64) {
	chunks := computeChunks(fileSize, t.Connections)
	client := utils.NewHTTPClient(t.clientCfg)

	reports := make(chan chunkReport, 256)
	failures := make(chan chunkFailure, len(chunks))
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		partPath := filepath.Join(t.tempDir, fmt.Sprintf("part_%d", chunk.ID))
		var onDisk int64
		if info, err := os.Stat(partPath); err == nil {
			onDisk = info.Size()
		}
		expected := chunk.EndByte - chunk.StartByte + 1
		if onDisk > expected {
			// A corrupt leftover; redo the chunk from scratch.
			os.Remove(partPath)
			onDisk = 0
		}
		t.mu.Lock()
		t.chunkProgress[chunk.ID] = onDisk
		t.downloaded += onDisk
		t.mu.Unlock()
		if onDisk == expected {
			log.Debug().Str("op", "engine/task").Msgf("Chunk %d already complete, skipping", chunk.ID)
			continue
		}
		worker := &chunkWorker{
			url:        t.URL,
			chunk:      chunk,
			partPath:   partPath,
			resumeFrom: onDisk,
			client:     client,
			ctl:        ctl,
			reports:    reports,
			failures:   failures,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.run()
		}()
	}

	t.mu.Lock()
	initial := t.progressLocked()
	t.mu.Unlock()
	t.events.progress(initial)

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	// Single aggregator: progress updates and the merge-trigger condition
	// are serialized here, so bytes>=total is never evaluated against a
	// half-applied update.
	var failure *chunkFailure
	for running := true; running; {
		select {
		case r := <-reports:
			t.applyReport(r)
		case f := <-failures:
			if failure == nil {
				failure = &f
				ctl.stopped.Store(true) // wind down the surviving workers
			}
		case <-joined:
			running = false
		}
	}
	for drained := false; !drained; {
		select {
		case r := <-reports:
			t.applyReport(r)
		case f := <-failures:
			if failure == nil {
				failure = &f
			}
		default:
			drained = true
		}
	}

	if t.haltedByUser() {
		return
	}
	if failure != nil {
		t.fail(fmt.Sprintf("chunk %d failed: %v", failure.ID, failure.Err))
		return
	}
	t.mu.Lock()
	complete := t.downloaded >= t.fileSize
	t.mu.Unlock()
	if !complete {
		t.fail("download ended before all chunks completed")
		return
	}
	t.merge()
}

func (t *Task) applyReport(r chunkReport) {
	t.mu.Lock()
	t.chunkProgress[r.ID] += r.Bytes
	t.downloaded = 0
	for _, n := range t.chunkProgress {
		t.downloaded += n
	}
	p := t.progressLocked()
	t.mu.Unlock()
	t.events.progress(p)
}

// merge concatenates the part files into the destination and removes the
// temp directory. Only an active download may enter the merge; this makes
// merge idempotent and keeps a last-instant Pause/Stop from being
// overwritten by finish.
func (t *Task) merge() {
	t.mu.Lock()
	if t.status != StatusDownloading {
		t.mu.Unlock()
		return
	}
	t.status = StatusMerging
	t.mu.Unlock()
	t.events.status(StatusMerging)

	if err := mergeParts(t.tempDir, t.SavePath, t.Connections); err != nil {
		// Destination is left as-is for manual inspection.
		t.fail(fmt.Sprintf("merge error: %v", err))
		return
	}
	os.RemoveAll(t.tempDir)
	log.Info().Str("op", "engine/task").Msgf("Merged %d parts into %s", t.Connections, t.SavePath)
	t.finish()
}

// runSingle streams the body straight into the destination file; used when
// the total size cannot be resolved up front.
func (t *Task) runSingle(ctl *control) {
	log.Debug().Str("op", "engine/task").Msgf("Size unknown, using single-stream for %s", t.URL)
	worker := &singleWorker{
		url:      t.URL,
		savePath: t.SavePath,
		client:   utils.NewHTTPClient(t.clientCfg),
		ctl:      ctl,
		onSize: func(total int64) {
			t.mu.Lock()
			if t.fileSize == 0 {
				t.fileSize = total
			}
			t.mu.Unlock()
		},
		onBytes: func(n int64) {
			t.mu.Lock()
			t.downloaded += n
			p := t.progressLocked()
			t.mu.Unlock()
			t.events.progress(p)
		},
	}
	completed, err := worker.run()
	if err != nil {
		t.fail(err.Error())
		return
	}
	if !completed {
		return // halted by user, status already set
	}
	t.mu.Lock()
	if t.fileSize == 0 {
		t.fileSize = t.downloaded
	}
	t.mu.Unlock()
	t.finish()
}

// runExtractor delegates to the external extractor worker, which handles
// the direct / default-proxy / rotating-proxy ladder itself.
func (t *Task) runExtractor() {
	policy := extractor.SelectionPolicy{Itag: t.Itag, Quality: t.Quality}
	worker := extractor.NewWorker(t.URL, t.SavePath, policy, t.pool)
	if t.extBinary != "" {
		worker.Binary = t.extBinary
	}
	worker.OnStatus = t.events.message
	worker.OnProgress = func(pct int) {
		t.mu.Lock()
		if t.fileSize > 0 {
			t.downloaded = int64(pct) * t.fileSize / 100
		}
		p := t.progressLocked()
		p.Percent = pct
		t.mu.Unlock()
		t.events.progress(p)
	}
	t.mu.Lock()
	// A Stop/Pause that landed before the worker was installed would
	// otherwise be lost: the subprocess never sees the control flags.
	if t.status == StatusPaused || t.status == StatusStopped {
		t.mu.Unlock()
		return
	}
	t.ext = worker
	t.mu.Unlock()

	err := worker.Run()
	t.mu.Lock()
	t.ext = nil
	t.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, extractor.ErrStopped):
		return
	case errors.Is(err, extractor.ErrExtractorMissing):
		t.fail(msgExtractorMissing)
		return
	case errors.Is(err, extractor.ErrNoProxyAvailable):
		t.fail(msgNoProxy)
		return
	case errors.Is(err, extractor.ErrAllProxiesFailed):
		t.fail(msgAllProxies)
		return
	default:
		t.fail(err.Error())
		return
	}

	outPath := worker.OutputPath()
	info, statErr := os.Stat(outPath)
	if statErr != nil {
		t.fail("file not found after download")
		return
	}
	t.mu.Lock()
	t.SavePath = outPath
	t.fileSize = info.Size()
	t.downloaded = info.Size()
	t.mu.Unlock()
	t.finish()
}
