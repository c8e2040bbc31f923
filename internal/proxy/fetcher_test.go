package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSourceTextStandard(t *testing.T) {
	text := "1.2.3.4:8080\n" +
		"# comment line\n" +
		"\n" +
		"5.6.7.8:3128\n" +
		"not-a-proxy\n" +
		"9.9.9.9:99999\n" + // port out of range
		"<html>error page that is far too long to be an address line</html>\n"

	got := parseSourceText(text, source{URL: "https://example.com/http.txt"})
	assert.Equal(t, []candidate{
		{Host: "1.2.3.4:8080", Type: "http"},
		{Host: "5.6.7.8:3128", Type: "http"},
	}, got)
}

func TestParseSourceTextSocks(t *testing.T) {
	got := parseSourceText("1.2.3.4:1080\n", source{URL: "https://example.com/socks5.txt", Socks: true})
	assert.Equal(t, []candidate{{Host: "1.2.3.4:1080", Type: "socks5"}}, got)
}

func TestParseSourceTextSpys(t *testing.T) {
	text := "Proxy list updated at Mon, 19 Aug 25\n" +
		"Support by donations\n" +
		"\n" +
		"185.10.129.14:3128 RU-H-S! +\n" +
		"91.205.174.26:80 UA-N-S -\n" +
		"Free proxy list\n"

	got := parseSourceText(text, source{URL: "https://spys.me/proxy.txt"})
	assert.Equal(t, []candidate{
		{Host: "185.10.129.14:3128", Type: "http"},
		{Host: "91.205.174.26:80", Type: "http"},
	}, got)
}

func TestHostPortValid(t *testing.T) {
	tests := []struct {
		hostPort string
		want     bool
	}{
		{"1.2.3.4:8080", true},
		{"1.2.3.4:1", true},
		{"1.2.3.4:65535", true},
		{"1.2.3.4:0", false},
		{"1.2.3.4:65536", false},
		{"1.2.3.4", false},
		{"host.example.com:8080", false},
		{":8080", false},
		{"1.2.3.4:port", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostPortValid(tt.hostPort), tt.hostPort)
	}
}

func TestDedupeAndShuffle(t *testing.T) {
	in := []candidate{
		{Host: "1.2.3.4:8080", Type: "http"},
		{Host: "5.6.7.8:3128", Type: "http"},
		{Host: "1.2.3.4:8080", Type: "socks5"}, // duplicate host, first type wins
	}
	got := dedupeAndShuffle(in)
	assert.Len(t, got, 2)
	hosts := map[string]bool{}
	for _, c := range got {
		hosts[c.Host] = true
	}
	assert.True(t, hosts["1.2.3.4:8080"])
	assert.True(t, hosts["5.6.7.8:3128"])
}

func TestSortBySpeed(t *testing.T) {
	entries := []Entry{
		{URL: "c", Speed: 3.2},
		{URL: "a", Speed: 0.4},
		{URL: "b", Speed: 1.1},
	}
	sortBySpeed(entries)
	assert.Equal(t, "a", entries[0].URL)
	assert.Equal(t, "b", entries[1].URL)
	assert.Equal(t, "c", entries[2].URL)
}
