// Package enricher fills envelope fields the client left out, using the
// request's User-Agent and source address.
package enricher

import (
	"net"
	"strings"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/vipinuengage/funnel-system/internal/event"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

// New opens the GeoIP database when a path is configured; country
// enrichment is silently skipped otherwise.
func New(geoIPPath string) *Enricher {
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		geoIP, _ = geoip2.Open(geoIPPath)
	}
	return &Enricher{geoIP: geoIP}
}

// Apply derives a missing system from the User-Agent and stamps the
// request's country into metadata when GeoIP is available. Fields the
// client set are never overwritten.
func (e *Enricher) Apply(envs []event.Envelope, userAgentString, clientIP string) []event.Envelope {
	var ua *useragent.UserAgent
	if userAgentString != "" {
		ua = useragent.New(userAgentString)
	}

	country := ""
	if e.geoIP != nil && clientIP != "" {
		if ip := net.ParseIP(clientIP); ip != nil {
			if record, err := e.geoIP.Country(ip); err == nil {
				country = record.Country.IsoCode
			}
		}
	}

	for i := range envs {
		if envs[i].System == "" && ua != nil {
			envs[i].System = string(systemFromUA(ua))
		}
		if country != "" {
			if envs[i].Metadata == nil {
				envs[i].Metadata = make(map[string]any)
			}
			if _, ok := envs[i].Metadata["country"]; !ok {
				envs[i].Metadata["country"] = country
			}
		}
	}
	return envs
}

func systemFromUA(ua *useragent.UserAgent) event.System {
	os := strings.ToLower(ua.OS())
	switch {
	case strings.Contains(os, "windows"):
		return event.SystemWindows
	case strings.Contains(os, "iphone"), strings.Contains(os, "ipad"), strings.Contains(os, "ios"):
		return event.SystemIOS
	case strings.Contains(os, "mac"), strings.Contains(os, "os x"):
		return event.SystemMacOS
	case strings.Contains(os, "android"):
		return event.SystemAndroid
	case strings.Contains(os, "linux"):
		return event.SystemLinux
	default:
		return event.SystemUnknown
	}
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
