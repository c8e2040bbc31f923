package extractor

import (
	"strings"
	"testing"
)

func TestSelectorItagBeatsQuality(t *testing.T) {
	p := SelectionPolicy{Itag: "137", Quality: "720p"}
	got := p.Selector()
	want := "137+bestaudio[ext=m4a]/137+bestaudio/137/best"
	if got != want {
		t.Errorf("Selector() = %q, want %q", got, want)
	}
}

func TestSelectorQualityChain(t *testing.T) {
	got := SelectionPolicy{Quality: "1080p"}.Selector()
	steps := strings.Split(got, "/")
	if len(steps) != 6 {
		t.Fatalf("expected 6 fallback steps, got %d: %q", len(steps), got)
	}
	if steps[0] != "bestvideo[height=1080][ext=mp4]+bestaudio[ext=m4a]" {
		t.Errorf("first step = %q", steps[0])
	}
	if steps[2] != "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]" {
		t.Errorf("third step should relax to height<=, got %q", steps[2])
	}
	if steps[5] != "best" {
		t.Errorf("last step should be best, got %q", steps[5])
	}
}

func TestSelectorDefault(t *testing.T) {
	if got := (SelectionPolicy{}).Selector(); got != defaultSelector {
		t.Errorf("empty policy should use default selector, got %q", got)
	}
	if got := (SelectionPolicy{Quality: "hdr-ultra"}).Selector(); got != defaultSelector {
		t.Errorf("unknown quality should use default selector, got %q", got)
	}
}

func TestMatchHeight(t *testing.T) {
	tests := []struct {
		quality string
		want    int
	}{
		{"1080p", 1080},
		{"1080", 1080},
		{"1440p", 1440}, // must not match the 144 label
		{"4k", 2160},
		{"720p60", 720},
		{"144", 144},
		{"best", 0},
	}
	for _, tt := range tests {
		if got := matchHeight(tt.quality); got != tt.want {
			t.Errorf("matchHeight(%q) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}
