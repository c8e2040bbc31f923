package extractor

import (
	"strconv"
	"strings"
)

// Substrings that mean the attempt died on the network path (or got blocked)
// rather than on the video itself. A non-zero exit with one of these means
// "rotate to a proxy", not "surface to the user".
var networkErrorIndicators = []string{
	"timed out",
	"timeout",
	"connection refused",
	"connection reset",
	"unable to download webpage",
	"proxy error",
	"httpconnectionpool",
	"httpsconnectionpool",
	"max retries exceeded",
	"network is unreachable",
	"no route to host",
	"http error 403",
	"http error 429",
	"got error: 403",
	"got error",
	"urlopen error",
	"errno 10060",
	"errno 10061",
	"errno 111",
	"failed to resolve",
	"name resolution",
	"connect timeout",
	"read timeout",
	"giving up after",
}

func isNetworkErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func isGivingUpLine(line string) bool {
	return strings.Contains(strings.ToLower(line), "giving up")
}

// parseDestination extracts the output file path from a
// "[download] Destination: <path>" line.
func parseDestination(line string) (string, bool) {
	if !strings.Contains(line, "[download]") || !strings.Contains(line, "Destination:") {
		return "", false
	}
	_, after, _ := strings.Cut(line, "Destination:")
	path := strings.TrimSpace(after)
	return path, path != ""
}

// parseProgress extracts the percentage from a progress line such as
// "[download]  42.3% of 10.00MiB at 1.20MiB/s ETA 00:05". A bare percent
// without a size/speed unit is ignored to avoid matching unrelated output.
func parseProgress(line string) (float64, bool) {
	if !strings.Contains(line, "[download]") || !strings.Contains(line, "%") {
		return 0, false
	}
	hasUnit := false
	for _, unit := range []string{"ETA", "MiB", "KiB", "GiB", "B/s"} {
		if strings.Contains(line, unit) {
			hasUnit = true
			break
		}
	}
	if !hasUnit {
		return 0, false
	}
	for _, field := range strings.Fields(line) {
		if strings.Contains(field, "%") {
			pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(field, "%")), 64)
			if err != nil {
				return 0, false
			}
			return pct, true
		}
	}
	return 0, false
}

func isMergerLine(line string) bool {
	return strings.Contains(line, "[Merger]") || strings.Contains(line, "Merging")
}
