package proxy

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one validated proxy endpoint ranked by measured latency.
type Entry struct {
	URL   string  `json:"url"`  // scheme://host:port
	Host  string  `json:"host"` // host:port
	Type  string  `json:"type"` // http or socks5
	Speed float64 `json:"speed"`
}

// Pool holds the ranked proxy list, the set of endpoints currently marked
// failed, and the rotation cursor. One mutex guards every read-modify-write;
// refreshes run on a background goroutine and never block Get/MarkFailed/
// MarkSuccess callers. At most one refresh is in flight at a time.
type Pool struct {
	mu          sync.Mutex
	entries     []Entry
	failed      map[string]bool
	cursor      int
	lastRefresh time.Time
	cacheFile   string
	refreshing  bool
	callbacks   []func(ok bool)
	fetch       fetchFunc
}

type fetchFunc func() []Entry

// NewPool builds a pool backed by the given cache file path (empty disables
// the disk cache) and loads any previously cached entries.
func NewPool(cacheFile string) *Pool {
	p := &Pool{
		failed:    make(map[string]bool),
		cacheFile: cacheFile,
		fetch:     fetchAndValidate,
	}
	p.loadCache()
	return p
}

// DefaultProxy returns the hardcoded fast-path endpoint, unconditionally.
func (p *Pool) DefaultProxy() string {
	return DefaultProxyURL
}

// NeedsRefresh reports whether the ranked list is empty, stale, or mostly
// failed.
func (p *Pool) NeedsRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return true
	}
	if time.Since(p.lastRefresh) > refreshInterval {
		return true
	}
	if float64(len(p.failed)) >= float64(len(p.entries))*failedRatioLimit {
		return true
	}
	return false
}

// Refresh fetches and validates a fresh proxy set on a background goroutine.
// Concurrent calls attach their callback to the in-flight fetch instead of
// starting another one.
func (p *Pool) Refresh(callback func(ok bool)) {
	p.mu.Lock()
	if callback != nil {
		p.callbacks = append(p.callbacks, callback)
	}
	if p.refreshing {
		p.mu.Unlock()
		log.Debug().Str("op", "proxy/pool").Msg("Refresh already in flight, attaching callback")
		return
	}
	p.refreshing = true
	p.mu.Unlock()

	go func() {
		entries := p.fetch()
		p.installEntries(entries)
	}()
}

// AwaitRefresh triggers a refresh and blocks until it completes or the
// timeout elapses. Used before the first proxy-based retry.
func (p *Pool) AwaitRefresh(timeout time.Duration) bool {
	done := make(chan bool, 1)
	p.Refresh(func(ok bool) {
		done <- ok
	})
	select {
	case ok := <-done:
		return ok
	case <-time.After(timeout):
		log.Warn().Str("op", "proxy/pool").Msgf("Proxy refresh did not finish within %s", timeout)
		return false
	}
}

func (p *Pool) installEntries(entries []Entry) {
	p.mu.Lock()
	if len(entries) > 0 {
		p.entries = entries
		p.lastRefresh = time.Now()
		p.failed = make(map[string]bool)
		p.cursor = 0
		p.saveCacheLocked()
		log.Info().Str("op", "proxy/pool").Msgf("Stored %d working proxies", len(entries))
	} else {
		log.Warn().Str("op", "proxy/pool").Msg("No proxies found, using embedded fallback")
		p.useEmbeddedFallbackLocked()
	}
	p.refreshing = false
	callbacks := p.callbacks
	p.callbacks = nil
	ok := len(p.entries) > 0
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(ok)
	}
}

// useEmbeddedFallbackLocked installs the first embedded entries without
// validation. Caller holds p.mu.
func (p *Pool) useEmbeddedFallbackLocked() {
	p.entries = p.entries[:0]
	for _, e := range embeddedProxies[:min(embeddedFallbackCount, len(embeddedProxies))] {
		p.entries = append(p.entries, Entry{
			URL:   e.Type + "://" + e.Host,
			Host:  e.Host,
			Type:  e.Type,
			Speed: UnknownSpeed,
		})
	}
	if len(p.entries) > 0 {
		p.lastRefresh = time.Now()
	}
}

// Get returns the next non-failed proxy URL in rotation order. When every
// entry is marked failed, the failure set is cleared and the first entry is
// returned. Returns "" only when even the embedded fallback yields nothing.
func (p *Pool) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		p.useEmbeddedFallbackLocked()
	}
	if len(p.entries) == 0 {
		return ""
	}
	for range p.entries {
		entry := p.entries[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.entries)
		if !p.failed[entry.URL] {
			return entry.URL
		}
	}
	log.Info().Str("op", "proxy/pool").Msg("All proxies failed, clearing failure marks")
	p.failed = make(map[string]bool)
	return p.entries[0].URL
}

// MarkFailed flags url so rotation skips it. The entry stays in the ranked
// list; failure marks are cleared wholesale when rotation exhausts.
func (p *Pool) MarkFailed(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[url] = true
	log.Debug().Str("op", "proxy/pool").Msgf("Proxy failed: %s (%d/%d failed)", url, len(p.failed), len(p.entries))
}

// MarkSuccess clears any failure mark and promotes the entry to the front of
// the ranked list, then persists the cache.
func (p *Pool) MarkSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, url)
	for i, e := range p.entries {
		if e.URL == url {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			p.entries = append([]Entry{e}, p.entries...)
			p.saveCacheLocked()
			log.Debug().Str("op", "proxy/pool").Msgf("Proxy success: %s", url)
			break
		}
	}
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) WorkingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) - len(p.failed)
}

// ClearCache drops all in-memory entries and removes the disk cache.
func (p *Pool) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.failed = make(map[string]bool)
	p.cursor = 0
	p.lastRefresh = time.Time{}
	p.removeCacheFile()
}
