package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const mergeBlockSize = 1024 * 1024

// mergeParts concatenates part files in index order into savePath, streamed
// in fixed-size blocks. A missing part is an error: merging only runs once
// every worker has been joined, so absence means a chunk never completed.
func mergeParts(tempDir, savePath string, numChunks int) error {
	out, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}
	defer out.Close()

	buffer := make([]byte, mergeBlockSize)
	for i := 0; i < numChunks; i++ {
		partPath := filepath.Join(tempDir, fmt.Sprintf("part_%d", i))
		part, err := os.Open(partPath)
		if err != nil {
			return fmt.Errorf("error opening part %d: %v", i, err)
		}
		_, err = io.CopyBuffer(out, part, buffer)
		part.Close()
		if err != nil {
			return fmt.Errorf("error copying part %d: %v", i, err)
		}
	}
	return out.Sync()
}
