package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Platform is the surface an event was captured on.
type Platform string

const (
	PlatformWebsite     Platform = "website"
	PlatformApplication Platform = "application"
)

// System is the operating system reported by the client.
type System string

const (
	SystemUnknown System = "unknown"
	SystemWindows System = "windows"
	SystemMacOS   System = "macos"
	SystemIOS     System = "ios"
	SystemAndroid System = "android"
	SystemLinux   System = "linux"
)

// Platforms lists every valid platform value.
func Platforms() []Platform {
	return []Platform{PlatformWebsite, PlatformApplication}
}

// Systems lists every valid system value.
func Systems() []System {
	return []System{SystemUnknown, SystemWindows, SystemMacOS, SystemIOS, SystemAndroid, SystemLinux}
}

// The event name that carries a visitor -> user identity claim, and the
// one whose rollups prefer distinct transaction ids over distinct visitors.
const (
	NameLogin      = "login"
	NameConversion = "conversion"
)

// Event is a single accepted behavioral event. Immutable once written,
// except for the identity backfill which fills a missing UserID.
type Event struct {
	TenantID   string         `json:"tenant_id"`
	VisitorID  string         `json:"visitor_id"`
	UserID     string         `json:"user_id,omitempty"`
	Name       string         `json:"event"`
	URL        string         `json:"url,omitempty"`
	Platform   Platform       `json:"platform"`
	System     System         `json:"system"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
	InsertedAt time.Time      `json:"inserted_at"`
}

// Envelope is the wire shape of one inbound event before normalization.
type Envelope struct {
	Name       string         `json:"event"`
	VisitorID  string         `json:"visitor_id"`
	UserID     string         `json:"user_id,omitempty"`
	URL        string         `json:"url,omitempty"`
	Platform   string         `json:"platform,omitempty"`
	System     string         `json:"system,omitempty"`
	CapturedAt string         `json:"captured_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// capturedAtLayouts are tried in order when parsing an envelope timestamp.
var capturedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalize turns an inbound envelope into a stored Event. A missing or
// unparseable captured_at is replaced with the ingestion instant, and
// out-of-enum platform/system values are clamped to their defaults.
func Normalize(env Envelope, tenantID string, now time.Time, rep Reporting) Event {
	ev := Event{
		TenantID:   tenantID,
		VisitorID:  env.VisitorID,
		UserID:     env.UserID,
		Name:       env.Name,
		URL:        env.URL,
		Platform:   NormalizePlatform(env.Platform),
		System:     NormalizeSystem(env.System),
		Metadata:   env.Metadata,
		CapturedAt: parseCapturedAt(env.CapturedAt, now, rep),
		InsertedAt: now,
	}
	return ev
}

func parseCapturedAt(raw string, now time.Time, rep Reporting) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range capturedAtLayouts {
		if t, err := time.ParseInLocation(layout, raw, rep.Location()); err == nil {
			return t
		}
	}
	return now
}

// NormalizePlatform clamps an arbitrary string to a valid Platform.
func NormalizePlatform(raw string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformApplication:
		return PlatformApplication
	default:
		return PlatformWebsite
	}
}

// NormalizeSystem clamps an arbitrary string to a valid System.
func NormalizeSystem(raw string) System {
	s := System(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Systems() {
		if s == known {
			return s
		}
	}
	return SystemUnknown
}

// IsIdentity reports whether the event carries a usable visitor -> user
// identity claim.
func (e Event) IsIdentity() bool {
	return e.Name == NameLogin && e.UserID != "" && e.VisitorID != ""
}

// IsConversion reports whether the event name is conversion-typed.
func IsConversion(name string) bool {
	return name == NameConversion
}

// TransactionID extracts the transaction identifier from event metadata,
// normalizing numeric forms to their string representation. Returns ""
// when no usable id is present.
func (e Event) TransactionID() string {
	if e.Metadata == nil {
		return ""
	}
	switch v := e.Metadata["transaction_id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
