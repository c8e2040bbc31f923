package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/utils"
)

// singleWorker streams the whole body sequentially into the destination
// file. Used when the server reports no usable content length, so range
// splitting is impossible. No part files and no merge step.
type singleWorker struct {
	url      string
	savePath string
	client   utils.HTTPDoer
	ctl      *control

	// onSize delivers a late-resolved total size from response headers.
	onSize  func(total int64)
	onBytes func(n int64)
}

// run returns (true, nil) on completion, (false, nil) on cooperative halt.
func (w *singleWorker) run() (bool, error) {
	req, err := http.NewRequest("GET", w.url, nil)
	if err != nil {
		return false, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("error executing GET request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" && w.onSize != nil {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > 0 {
			w.onSize(size)
		}
	}

	outFile, err := os.OpenFile(w.savePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return false, fmt.Errorf("error creating output file: %v", err)
	}
	defer outFile.Close()

	buffer := make([]byte, utils.SingleStreamBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if w.ctl.halted() {
				log.Debug().Str("op", "engine/single-worker").Msg("Single-stream download halted")
				return false, nil
			}
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return false, fmt.Errorf("error writing output file: %v", writeErr)
			}
			if w.onBytes != nil {
				w.onBytes(int64(bytesRead))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return false, fmt.Errorf("error reading response body: %v", readErr)
		}
	}

	info, err := os.Stat(w.savePath)
	if err != nil || info.Size() == 0 {
		return false, fmt.Errorf("downloaded file is empty")
	}
	return true, nil
}
