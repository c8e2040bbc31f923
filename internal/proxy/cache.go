package proxy

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// cacheFile wire shape: {"proxies": [...], "timestamp": unixSeconds}
type cachePayload struct {
	Proxies   []Entry `json:"proxies"`
	Timestamp int64   `json:"timestamp"`
}

// loadCache restores entries from disk. Unreadable or expired caches are
// treated as a miss, never an error.
func (p *Pool) loadCache() {
	if p.cacheFile == "" {
		return
	}
	data, err := os.ReadFile(p.cacheFile)
	if err != nil {
		return
	}
	var payload cachePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Str("op", "proxy/cache").Err(err).Msg("Ignoring unreadable proxy cache")
		return
	}
	age := time.Since(time.Unix(payload.Timestamp, 0))
	if age > cacheMaxAge {
		log.Debug().Str("op", "proxy/cache").Msg("Proxy cache expired (>24h)")
		return
	}
	p.mu.Lock()
	p.entries = payload.Proxies
	p.lastRefresh = time.Unix(payload.Timestamp, 0)
	p.mu.Unlock()
	log.Debug().Str("op", "proxy/cache").Msgf("Loaded %d cached proxies (%.0fm old)", len(payload.Proxies), age.Minutes())
}

// saveCacheLocked persists the top entries atomically (write temp, rename).
// Caller holds p.mu.
func (p *Pool) saveCacheLocked() {
	if p.cacheFile == "" {
		return
	}
	payload := cachePayload{
		Proxies:   p.entries[:min(cacheTopN, len(p.entries))],
		Timestamp: time.Now().Unix(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	tmp := p.cacheFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Warn().Str("op", "proxy/cache").Err(err).Msg("Failed to write proxy cache")
		return
	}
	if err := os.Rename(tmp, p.cacheFile); err != nil {
		log.Warn().Str("op", "proxy/cache").Err(err).Msg("Failed to finalize proxy cache")
	}
}

func (p *Pool) removeCacheFile() {
	if p.cacheFile == "" {
		return
	}
	if err := os.Remove(p.cacheFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "proxy/cache").Err(err).Msg("Failed to remove proxy cache")
	}
}
