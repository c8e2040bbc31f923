package extractor

import (
	"fmt"
	"strings"
)

// SelectionPolicy captures what the user asked for; Selector renders it to
// yt-dlp's format expression syntax. An explicit Itag beats a quality label.
type SelectionPolicy struct {
	Itag    string
	Quality string
}

// Ordered longest-first so "1440p" never matches the "144" label.
var qualityHeights = []struct {
	label  string
	height int
}{
	{"2160p", 2160}, {"2160", 2160}, {"4k", 2160},
	{"1440p", 1440}, {"1440", 1440},
	{"1080p", 1080}, {"1080", 1080},
	{"720p", 720}, {"720", 720},
	{"480p", 480}, {"480", 480},
	{"360p", 360}, {"360", 360},
	{"240p", 240}, {"240", 240},
	{"144p", 144}, {"144", 144},
}

const defaultSelector = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best[ext=mp4]/best"

// Selector builds the graduated fallback chain: exact height with mp4, exact
// height any format, height-or-below with mp4, height-or-below any format,
// then best-effort.
func (p SelectionPolicy) Selector() string {
	if p.Itag != "" {
		return fmt.Sprintf("%s+bestaudio[ext=m4a]/%s+bestaudio/%s/best", p.Itag, p.Itag, p.Itag)
	}
	if p.Quality != "" {
		q := strings.ToLower(strings.TrimSpace(p.Quality))
		if height := matchHeight(q); height > 0 {
			return fmt.Sprintf(
				"bestvideo[height=%d][ext=mp4]+bestaudio[ext=m4a]/"+
					"bestvideo[height=%d]+bestaudio/"+
					"bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/"+
					"bestvideo[height<=%d]+bestaudio/"+
					"best[height<=%d]/best",
				height, height, height, height, height)
		}
	}
	return defaultSelector
}

func matchHeight(quality string) int {
	for _, q := range qualityHeights {
		if strings.Contains(quality, q.label) {
			return q.height
		}
	}
	return 0
}
