package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_CommonAgents(t *testing.T) {
	tests := []struct {
		name    string
		hint    string
		device  string
		browser string
		os      string
	}{
		{
			name:    "chrome on windows desktop",
			hint:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			device:  "desktop",
			browser: "chrome",
			os:      "windows",
		},
		{
			name:    "safari on iphone",
			hint:    "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			device:  "mobile",
			browser: "safari",
			os:      "ios",
		},
		{
			name:    "firefox on linux",
			hint:    "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			device:  "desktop",
			browser: "firefox",
			os:      "linux",
		},
		{
			name:    "edge on windows",
			hint:    "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			device:  "desktop",
			browser: "edge",
			os:      "windows",
		},
		{
			name:    "chrome on android tablet",
			hint:    "Mozilla/5.0 (Linux; Android 13; SM-X900 Tablet) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
			device:  "tablet",
			browser: "chrome",
			os:      "android",
		},
		{
			name:    "safari on ipad",
			hint:    "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 Version/16.0 Safari/604.1",
			device:  "tablet",
			browser: "safari",
			os:      "ios",
		},
		{
			name:    "safari on mac",
			hint:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15",
			device:  "desktop",
			browser: "safari",
			os:      "macos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Parse(tt.hint)
			assert.Equal(t, tt.device, info.Device)
			assert.Equal(t, tt.browser, info.Browser)
			assert.Equal(t, tt.os, info.OS)
		})
	}
}

func TestParse_EmptyHint(t *testing.T) {
	info := Parse("")
	assert.Equal(t, Unknown, info.Device)
	assert.Equal(t, Unknown, info.Browser)
	assert.Equal(t, Unknown, info.OS)
}

func TestParse_GarbageHint(t *testing.T) {
	info := Parse("curl/8.4.0")
	assert.Equal(t, "desktop", info.Device)
	assert.Equal(t, Unknown, info.Browser)
	assert.Equal(t, Unknown, info.OS)
}
