package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/utils"
)

type chunkRange struct {
	ID        int
	StartByte int64
	EndByte   int64
}

// computeChunks splits [0, fileSize-1] into connections ranges with no gaps
// or overlaps; the last range absorbs the remainder.
func computeChunks(fileSize int64, connections int) []chunkRange {
	chunkSize := fileSize / int64(connections)
	chunks := make([]chunkRange, 0, connections)
	for i := 0; i < connections; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == connections-1 {
			end = fileSize - 1
		}
		chunks = append(chunks, chunkRange{ID: i, StartByte: start, EndByte: end})
	}
	return chunks
}

type chunkReport struct {
	ID    int
	Bytes int64
}

type chunkFailure struct {
	ID  int
	Err error
}

// chunkWorker downloads one byte range into its part file. resumeOffset
// bytes already on disk shrink the requested sub-range; the part file is
// opened in append mode so a paused worker leaves it intact for resume.
// Regular downloads always use a direct connection; proxies are reserved
// for the extractor workflow.
type chunkWorker struct {
	url        string
	chunk      chunkRange
	partPath   string
	resumeFrom int64
	client     utils.HTTPDoer
	ctl        *control
	reports    chan<- chunkReport
	failures   chan<- chunkFailure
}

func (w *chunkWorker) run() {
	if err := w.download(); err != nil {
		log.Debug().Str("op", "engine/chunk-worker").Err(err).Msgf("Chunk %d failed", w.chunk.ID)
		w.failures <- chunkFailure{ID: w.chunk.ID, Err: err}
	}
}

func (w *chunkWorker) download() error {
	flag := os.O_WRONLY | os.O_CREATE
	if w.resumeFrom > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	partFile, err := os.OpenFile(w.partPath, flag, 0644)
	if err != nil {
		return fmt.Errorf("error opening part file: %v", err)
	}
	defer partFile.Close()

	startByte := w.chunk.StartByte + w.resumeFrom
	req, err := http.NewRequest("GET", w.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, w.chunk.EndByte))
	req.Header.Set("Connection", "keep-alive")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return utils.ErrRangeRequestsNotSupported
	}
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			// Cooperative cancellation point: checked before every write so
			// pause/stop never truncates a buffer mid-write.
			if w.ctl.halted() {
				return nil
			}
			if _, writeErr := partFile.Write(buffer[:bytesRead]); writeErr != nil {
				return fmt.Errorf("error writing part file: %v", writeErr)
			}
			w.reports <- chunkReport{ID: w.chunk.ID, Bytes: int64(bytesRead)}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return fmt.Errorf("error reading response body: %v", readErr)
		}
	}
}
