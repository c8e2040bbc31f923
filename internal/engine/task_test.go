package engine

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hyperfetch/hyperfetch/internal/proxy"
	"github.com/hyperfetch/hyperfetch/internal/utils"
)

func testClientCfg() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{MaxRetries: 2, RetryDelay: time.Millisecond}
}

func TestTaskChunkedDownload(t *testing.T) {
	body := testBody(256 * 1024)
	server, seenRanges := rangeServer(t, body)
	savePath := filepath.Join(t.TempDir(), "file.bin")

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{Connections: 4})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content does not match")
	}
	if len(seenRanges()) != 4 {
		t.Errorf("saw %d range requests, want 4", len(seenRanges()))
	}
	snap := task.Snapshot()
	if snap.Downloaded != int64(len(body)) || snap.Total != int64(len(body)) {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, err := os.Stat(utils.TempDirFor(savePath)); !os.IsNotExist(err) {
		t.Error("temp directory should be removed after merge")
	}
}

func TestTaskResumeSkipsCompletedBytes(t *testing.T) {
	body := testBody(1000)
	server, seenRanges := rangeServer(t, body)
	savePath := filepath.Join(t.TempDir(), "file.bin")

	// Chunks for 1000 bytes over 2 connections are [0,499] and [500,999].
	// Seed part_0 partially and part_1 completely.
	tempDir := utils.TempDirFor(savePath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, "part_0"), body[:200], 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, "part_1"), body[500:], 0644); err != nil {
		t.Fatal(err)
	}

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{Connections: 2})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	ranges := seenRanges()
	if len(ranges) != 1 || ranges[0] != "bytes=200-499" {
		t.Errorf("ranges = %v, want only the missing sub-range of part_0", ranges)
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("resumed content does not match")
	}
}

func TestTaskRedoesOversizedPart(t *testing.T) {
	body := testBody(1000)
	server, seenRanges := rangeServer(t, body)
	savePath := filepath.Join(t.TempDir(), "file.bin")

	tempDir := utils.TempDirFor(savePath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	// part_1 larger than its range means corruption; it must be redone.
	if err := os.WriteFile(filepath.Join(tempDir, "part_1"), make([]byte, 600), 0644); err != nil {
		t.Fatal(err)
	}

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{Connections: 2})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("content does not match after redoing corrupt part")
	}
	for _, r := range seenRanges() {
		if r == "bytes=1100-999" {
			t.Error("corrupt part produced an inverted range request")
		}
	}
}

func TestTaskChunkFailureSetsError(t *testing.T) {
	body := testBody(1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			return
		}
		// Only the first chunk's range is served; the rest get a hard 404.
		if strings.HasPrefix(r.Header.Get("Range"), "bytes=0-") {
			http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(body))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()
	savePath := filepath.Join(t.TempDir(), "file.bin")

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{Connections: 2})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusError {
		t.Fatalf("status = %s, want Error", got)
	}
	if !strings.Contains(task.LastError(), "chunk") {
		t.Errorf("lastError = %q, want chunk failure detail", task.LastError())
	}
	if _, err := os.Stat(savePath); !os.IsNotExist(err) {
		t.Error("no destination file should exist after a failed download")
	}
	if _, err := os.Stat(utils.TempDirFor(savePath)); err != nil {
		t.Error("part files should survive a failed download for later resume")
	}
}

func TestTaskSingleStreamFallback(t *testing.T) {
	body := testBody(100 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return // no usable size up front
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer server.Close()
	savePath := filepath.Join(t.TempDir(), "file.bin")

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content does not match")
	}
	snap := task.Snapshot()
	if snap.Total != int64(len(body)) {
		t.Errorf("late size correction missing, total = %d", snap.Total)
	}
}

func TestTaskPauseAndResume(t *testing.T) {
	body := testBody(512 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(throttledWriter{w}, r, "file.bin", time.Time{}, bytes.NewReader(body))
	}))
	defer server.Close()
	savePath := filepath.Join(t.TempDir(), "file.bin")

	task := NewTask(server.URL, savePath, proxy.NewPool(""), testClientCfg(), TaskOptions{Connections: 2})
	progressed := make(chan struct{}, 1)
	task.SetEvents(Events{
		OnProgress: func(p Progress) {
			if p.Downloaded > 0 {
				select {
				case progressed <- struct{}{}:
				default:
				}
			}
		},
	})

	task.Start()
	select {
	case <-progressed:
	case <-time.After(10 * time.Second):
		t.Fatal("no progress before pause")
	}
	task.Pause()
	task.Wait()
	if got := task.Status(); got != StatusPaused {
		t.Fatalf("status = %s, want Paused", got)
	}
	if _, err := os.Stat(savePath); !os.IsNotExist(err) {
		t.Fatal("pause must not produce a merged destination file")
	}

	task.SetEvents(Events{})
	task.Resume()
	task.Wait()
	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status after resume = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("content does not match after pause and resume")
	}
}

// throttledWriter slows response writes enough for pause to land mid-stream.
type throttledWriter struct{ http.ResponseWriter }

func (t throttledWriter) Write(p []byte) (int, error) {
	time.Sleep(20 * time.Millisecond)
	return t.ResponseWriter.Write(p)
}

func TestTaskExtractorStrategy(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor scripts need a POSIX shell")
	}
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	script := filepath.Join(t.TempDir(), "fake-ytdlp")
	body := "#!/bin/sh\n" +
		"echo \"[download] Destination: " + dest + "\"\n" +
		"echo \"[download] 100% of 10.00MiB in 00:08\"\n" +
		"head -c 20000 /dev/zero > \"" + dest + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	task := NewTask("https://youtube.com/watch?v=abc", dest, proxy.NewPool(""), testClientCfg(),
		TaskOptions{Extractor: script, Quality: "1080p"})
	task.Start()
	task.Wait()

	if got := task.Status(); got != StatusFinished {
		t.Fatalf("status = %s, want Finished (lastError=%q)", got, task.LastError())
	}
	snap := task.Snapshot()
	if snap.Total != 20000 || snap.Downloaded != 20000 {
		t.Errorf("snapshot = %+v, want 20000 bytes", snap)
	}
	if task.SavePath != dest {
		t.Errorf("SavePath = %q", task.SavePath)
	}
}

func TestStopBeforeExtractorRuns(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor scripts need a POSIX shell")
	}
	marker := filepath.Join(t.TempDir(), "ran")
	script := filepath.Join(t.TempDir(), "fake-ytdlp")
	body := "#!/bin/sh\ntouch \"" + marker + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "video.mp4")

	task := NewTask("https://youtube.com/watch?v=abc", dest, proxy.NewPool(""), testClientCfg(),
		TaskOptions{Extractor: script})
	task.status = StatusStopped
	task.runExtractor()

	if got := task.Status(); got != StatusStopped {
		t.Fatalf("status = %s, want Stopped", got)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("extractor must not launch once the task is stopped")
	}
}

func TestIsVideoHostURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://youtu.be/abc", true},
		{"https://music.youtube.com/watch?v=abc", true},
		{"https://example.com/file.bin", false},
		{"https://www.youtube.com/", false},
	}
	for _, tt := range tests {
		if got := isVideoHostURL(tt.url); got != tt.want {
			t.Errorf("isVideoHostURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
