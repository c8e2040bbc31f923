package extractor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hyperfetch/hyperfetch/internal/proxy"
)

// writeFakeExtractor creates a shell script standing in for the extractor
// binary. Tests bake the expected output lines and side effects into it.
func writeFakeExtractor(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ytdlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeProxyCache seeds a pool cache file so tests skip the live refresh.
func writeProxyCache(t *testing.T, urls ...string) *proxy.Pool {
	t.Helper()
	var proxies []map[string]any
	for _, u := range urls {
		host := strings.TrimPrefix(u, "http://")
		proxies = append(proxies, map[string]any{"url": u, "host": host, "type": "http", "speed": 1.0})
	}
	data, err := json.Marshal(map[string]any{"proxies": proxies, "timestamp": time.Now().Unix()})
	if err != nil {
		t.Fatal(err)
	}
	cacheFile := filepath.Join(t.TempDir(), "proxies.json")
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		t.Fatal(err)
	}
	return proxy.NewPool(cacheFile)
}

func TestWorkerRunSuccess(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	script := writeFakeExtractor(t, strings.Join([]string{
		`echo "[youtube] abc: Downloading webpage"`,
		`echo "[download] Destination: ` + dest + `"`,
		`echo "[download]  50.0% of 10.00MiB at 1.20MiB/s ETA 00:05"`,
		`echo "[download] 100% of 10.00MiB in 00:08"`,
		`head -c 20000 /dev/zero > "` + dest + `"`,
	}, "\n"))

	w := NewWorker("https://youtube.com/watch?v=abc", dest, SelectionPolicy{}, proxy.NewPool(""))
	w.Binary = script
	var lastPct int
	w.OnProgress = func(pct int) { lastPct = pct }

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.OutputPath() != dest {
		t.Errorf("OutputPath = %q, want %q", w.OutputPath(), dest)
	}
	if lastPct != 100 {
		t.Errorf("final progress = %d, want 100", lastPct)
	}
}

func TestWorkerRunFatalError(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	// Real progress followed by a non-network failure must not rotate
	// proxies; it surfaces immediately.
	script := writeFakeExtractor(t, strings.Join([]string{
		`echo "[download] Destination: ` + dest + `"`,
		`echo "[download]  50.0% of 10.00MiB at 1.20MiB/s ETA 00:05"`,
		`echo "ERROR: ffmpeg exited with code 1"`,
		`exit 1`,
	}, "\n"))

	w := NewWorker("https://youtube.com/watch?v=abc", dest, SelectionPolicy{}, proxy.NewPool(""))
	w.Binary = script

	err := w.Run()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exit 1") {
		t.Errorf("error = %v, want extractor exit failure", err)
	}
}

func TestWorkerRunAllProxiesFailed(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	script := writeFakeExtractor(t, strings.Join([]string{
		`echo "ERROR: Unable to download webpage: <urlopen error timed out>"`,
		`exit 1`,
	}, "\n"))

	pool := writeProxyCache(t, "http://10.0.0.1:8080", "http://10.0.0.2:8080", "http://10.0.0.3:8080")
	w := NewWorker("https://youtube.com/watch?v=abc", dest, SelectionPolicy{}, pool)
	w.Binary = script
	var statuses []string
	w.OnStatus = func(s string) { statuses = append(statuses, s) }

	err := w.Run()
	if !errors.Is(err, ErrAllProxiesFailed) {
		t.Fatalf("err = %v, want ErrAllProxiesFailed", err)
	}
	var sawProxyAttempt bool
	for _, s := range statuses {
		if strings.HasPrefix(s, "Proxy ") {
			sawProxyAttempt = true
		}
	}
	if !sawProxyAttempt {
		t.Error("expected rotated proxy attempts in status stream")
	}
}

func TestWorkerRunExtractorMissing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video.mp4")
	w := NewWorker("https://youtube.com/watch?v=abc", dest, SelectionPolicy{}, proxy.NewPool(""))
	w.Binary = filepath.Join(t.TempDir(), "definitely-not-installed")

	if err := w.Run(); !errors.Is(err, ErrExtractorMissing) {
		t.Fatalf("err = %v, want ErrExtractorMissing", err)
	}
}

func TestWorkerStop(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video.mp4")
	script := writeFakeExtractor(t, strings.Join([]string{
		`echo "[youtube] abc: Downloading webpage"`,
		`exec sleep 10`,
	}, "\n"))

	w := NewWorker("https://youtube.com/watch?v=abc", dest, SelectionPolicy{}, proxy.NewPool(""))
	w.Binary = script

	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	time.Sleep(200 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("err = %v, want ErrStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
