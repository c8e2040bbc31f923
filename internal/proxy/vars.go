package proxy

import "time"

// DefaultProxyURL is the zero-validation fast path: tried before any
// validated proxy because it skips the fetch/validate round-trip entirely.
// Free proxies die fast, so this needs periodic re-verification.
const DefaultProxyURL = "http://103.81.194.165:8080"

const (
	refreshInterval  = 30 * time.Minute
	cacheMaxAge      = 24 * time.Hour
	failedRatioLimit = 0.7 // refresh once this share of entries is failed

	sourceFetchTimeout = 6 * time.Second
	validateTimeout    = 12 * time.Second
	validateWorkers    = 50
	validateSampleMax  = 300
	maxValidProxies    = 25
	cacheTopN          = 30

	// Validation target: must answer 200 with a real page through the proxy.
	validationTargetURL = "https://www.youtube.com"
	minValidBodySize    = 10000
	fingerprintWindow   = 2000
	bodyFingerprint     = "youtube"

	// Speed recorded for embedded fallback entries that were never measured.
	UnknownSpeed = 999
)

type source struct {
	URL   string
	Socks bool
}

// Remote list sources, fastest APIs first. Each serves plain ip:port lines
// except spys.me which needs its own parser.
var proxySources = []source{
	{URL: "https://www.proxy-list.download/api/v1/get?type=http"},
	{URL: "https://www.proxy-list.download/api/v1/get?type=https"},
	{URL: "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000&country=all&ssl=yes"},
	{URL: "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=socks5&timeout=10000&country=all", Socks: true},
	{URL: "https://api.proxyscrape.com/v3/free-proxy-list/get?request=displayproxies&protocol=http&timeout=10000&proxy_format=ipport&format=text"},
	{URL: "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt"},
	{URL: "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt"},
	{URL: "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies_anonymous/http.txt"},
	{URL: "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks5.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/clarketm/proxy-list/master/proxy-list-raw.txt"},
	{URL: "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt"},
	{URL: "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/socks5.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/hookzof/socks5_list/master/proxy.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/roosterkid/openproxylist/main/HTTPS_RAW.txt"},
	{URL: "https://raw.githubusercontent.com/roosterkid/openproxylist/main/SOCKS5_RAW.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/prxchk/proxy-list/main/http.txt"},
	{URL: "https://raw.githubusercontent.com/prxchk/proxy-list/main/socks5.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/MuRongPIG/Proxy-Master/main/http.txt"},
	{URL: "https://raw.githubusercontent.com/MuRongPIG/Proxy-Master/main/socks5.txt", Socks: true},
	{URL: "https://raw.githubusercontent.com/zloi-user/hideip.me/main/http.txt"},
	{URL: "https://raw.githubusercontent.com/zloi-user/hideip.me/main/socks5.txt", Socks: true},
	{URL: "https://spys.me/proxy.txt"},
}

type embeddedEntry struct {
	Host string
	Type string
}

// Last-resort endpoints used unvalidated when every remote source is down.
var embeddedProxies = []embeddedEntry{
	{"103.81.194.165:8080", "http"},
	{"103.81.194.120:8080", "http"},
	{"38.180.2.107:3128", "http"},
	{"103.81.194.124:8080", "http"},
	{"103.81.194.125:8080", "http"},
	{"140.238.184.182:3128", "http"},
	{"157.66.84.32:8181", "http"},
	{"49.229.100.235:8080", "http"},
	{"154.26.135.123:3128", "http"},
	{"45.77.147.46:3128", "http"},
	{"8.219.97.248:80", "http"},
	{"47.88.31.196:8080", "http"},
	{"47.251.70.179:80", "http"},
	{"20.206.106.192:8123", "http"},
	{"43.153.208.166:3128", "http"},
	{"47.243.166.133:18080", "http"},
	{"198.59.191.234:8080", "http"},
	{"103.152.112.162:80", "http"},
	{"51.158.123.35:8811", "socks5"},
	{"192.111.139.165:19404", "socks5"},
	{"72.210.252.134:46164", "socks5"},
	{"192.252.208.67:14287", "socks5"},
	{"72.195.114.169:4145", "socks5"},
	{"174.77.111.197:4145", "socks5"},
	{"72.221.164.34:60671", "socks5"},
	{"184.178.172.14:4145", "socks5"},
	{"70.166.167.55:57745", "socks5"},
}

const embeddedFallbackCount = 15
