package extractor

import (
	"os"
	"path/filepath"
	"strings"
)

// Anything below this is an error page or a stub, not a video.
const minPlausibleSize = 10000

// Containers the extractor may pick when the requested one is unavailable.
var alternateExtensions = []string{".mp4", ".mkv", ".webm", ".mp4.part"}

// findOutputFile locates the downloaded file for savePath, checking the
// known container extensions and then the path reported by the extractor
// itself. Empty and near-empty files are rejected as false successes.
func findOutputFile(savePath, reportedPath string) (string, int64, bool) {
	dir := filepath.Dir(savePath)
	base := strings.TrimSuffix(filepath.Base(savePath), filepath.Ext(savePath))
	for _, ext := range alternateExtensions {
		check := filepath.Join(dir, base+ext)
		if info, err := os.Stat(check); err == nil && info.Size() > minPlausibleSize {
			return check, info.Size(), true
		}
	}
	if reportedPath != "" {
		if info, err := os.Stat(reportedPath); err == nil && info.Size() > minPlausibleSize {
			return reportedPath, info.Size(), true
		}
	}
	return "", 0, false
}
