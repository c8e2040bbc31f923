package proxy

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperfetch/hyperfetch/internal/utils"
)

type candidate struct {
	Host string // host:port
	Type string // http or socks5
}

// fetchAndValidate pulls candidates from every remote source, then validates
// a bounded sample concurrently and returns the survivors ranked by latency.
// An empty result means the pool should fall back to embedded entries.
func fetchAndValidate() []Entry {
	candidates := fetchAllSources()
	for _, e := range embeddedProxies {
		candidates = append(candidates, candidate{Host: e.Host, Type: e.Type})
	}
	candidates = dedupeAndShuffle(candidates)
	log.Info().Str("op", "proxy/fetcher").Msgf("Testing %d proxy candidates", len(candidates))
	return validateCandidates(candidates)
}

func fetchAllSources() []candidate {
	client := utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:    sourceFetchTimeout,
		UserAgent:  utils.GetRandomUserAgent(),
		MaxRetries: 1,
	})
	var candidates []candidate
	reached := 0
	for _, src := range proxySources {
		req, err := http.NewRequest("GET", src.URL, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Debug().Str("op", "proxy/fetcher").Msgf("Source failed: %s", src.URL)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		parsed := parseSourceText(string(body), src)
		candidates = append(candidates, parsed...)
		reached++
	}
	log.Debug().Str("op", "proxy/fetcher").Msgf("Fetched %d candidates from %d sources", len(candidates), reached)
	return candidates
}

// parseSourceText extracts host:port pairs. Most sources serve one ip:port
// per line; spys.me wraps the endpoint in extra annotation columns.
func parseSourceText(text string, src source) []candidate {
	ptype := "http"
	if src.Socks {
		ptype = "socks5"
	}
	var out []candidate
	if strings.Contains(src.URL, "spys.me") {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || line[0] < '0' || line[0] > '9' || !strings.Contains(line, ":") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 0 || !strings.Contains(fields[0], ":") {
				continue
			}
			if hostPortValid(fields[0]) {
				out = append(out, candidate{Host: fields[0], Type: "http"})
			}
		}
		return out
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || len(line) >= 50 {
			continue
		}
		if hostPortValid(line) {
			out = append(out, candidate{Host: line, Type: ptype})
		}
	}
	return out
}

func hostPortValid(hostPort string) bool {
	parts := strings.Split(hostPort, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	if parts[0][0] < '0' || parts[0][0] > '9' {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return port >= 1 && port <= 65535
}

func dedupeAndShuffle(candidates []candidate) []candidate {
	seen := make(map[string]bool)
	unique := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c.Host] {
			seen[c.Host] = true
			unique = append(unique, c)
		}
	}
	rand.Shuffle(len(unique), func(i, j int) {
		unique[i], unique[j] = unique[j], unique[i]
	})
	return unique
}

// validateCandidates runs a bounded worker pool over the sample, issuing a
// real request through each candidate. Outstanding checks are cancelled once
// enough valid proxies are collected.
func validateCandidates(candidates []candidate) []Entry {
	if len(candidates) > validateSampleMax {
		candidates = candidates[:validateSampleMax]
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan candidate)
	results := make(chan Entry, maxValidProxies)
	var wg sync.WaitGroup
	for i := 0; i < validateWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if ctx.Err() != nil {
					continue // drain without testing once cancelled
				}
				if entry, ok := validateOne(ctx, c); ok {
					select {
					case results <- entry:
					default: // enough collected already
					}
				}
			}
		}()
	}

	go func() {
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-ctx.Done():
			}
		}
		close(jobs)
	}()

	var valid []Entry
	collect := make(chan struct{})
	go func() {
		defer close(collect)
		for entry := range results {
			valid = append(valid, entry)
			log.Debug().Str("op", "proxy/fetcher").Msgf("Proxy #%d: %s (%.1fs)", len(valid), entry.Host, entry.Speed)
			if len(valid) >= maxValidProxies {
				cancel()
			}
		}
	}()

	wg.Wait()
	close(results)
	<-collect

	sortBySpeed(valid)
	log.Info().Str("op", "proxy/fetcher").Msgf("Found %d working proxies", len(valid))
	return valid
}

// validateOne issues a request through the candidate and requires a 200, a
// plausibly sized body, and the expected content fingerprint, so transparent
// error pages don't pass as working proxies.
func validateOne(ctx context.Context, c candidate) (Entry, bool) {
	proxyURL := c.Type + "://" + c.Host
	client := utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:    validateTimeout,
		ProxyURL:   proxyURL,
		UserAgent:  utils.GetRandomUserAgent(),
		MaxRetries: 1,
	})
	req, err := http.NewRequestWithContext(ctx, "GET", validationTargetURL, nil)
	if err != nil {
		return Entry{}, false
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*minValidBodySize))
	if err != nil || resp.StatusCode != http.StatusOK || len(body) <= minValidBodySize {
		return Entry{}, false
	}
	head := strings.ToLower(string(body[:min(fingerprintWindow, len(body))]))
	if !strings.Contains(head, bodyFingerprint) {
		return Entry{}, false
	}
	return Entry{
		URL:   proxyURL,
		Host:  c.Host,
		Type:  c.Type,
		Speed: time.Since(start).Seconds(),
	}, true
}

func sortBySpeed(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Speed < entries[j].Speed
	})
}
