package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vipinuengage/funnel-system/internal/event"
)

const (
	uaWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	uaMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	uaAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
	uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaLinux   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

func TestApplyDerivesSystemFromUserAgent(t *testing.T) {
	e := New("")

	tests := []struct {
		ua   string
		want string
	}{
		{uaWindows, "windows"},
		{uaMac, "macos"},
		{uaAndroid, "android"},
		{uaIPhone, "ios"},
		{uaLinux, "linux"},
	}

	for _, tt := range tests {
		envs := e.Apply([]event.Envelope{{Name: "visit", VisitorID: "v1"}}, tt.ua, "")
		assert.Equal(t, tt.want, envs[0].System, "ua: %s", tt.ua)
	}
}

func TestApplyKeepsClientSystem(t *testing.T) {
	e := New("")
	envs := e.Apply([]event.Envelope{{Name: "visit", VisitorID: "v1", System: "ios"}}, uaWindows, "")
	assert.Equal(t, "ios", envs[0].System)
}

func TestApplyWithoutUserAgent(t *testing.T) {
	e := New("")
	envs := e.Apply([]event.Envelope{{Name: "visit", VisitorID: "v1"}}, "", "203.0.113.7")
	assert.Equal(t, "", envs[0].System)
}

func TestApplyWithoutGeoIPLeavesMetadata(t *testing.T) {
	e := New("")
	envs := e.Apply([]event.Envelope{{Name: "visit", VisitorID: "v1"}}, uaWindows, "203.0.113.7")
	assert.Nil(t, envs[0].Metadata)
}

func TestCloseWithoutGeoIP(t *testing.T) {
	New("").Close()
	New("/nonexistent/geoip.mmdb").Close()
}
