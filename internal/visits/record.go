// Package visits holds the persisted visit log: one record per tracked page
// request plus the file-backed store that keeps them.
package visits

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// UserAgentKind tells which of the three historical userAgent shapes a record carries
type UserAgentKind int

const (
	// UserAgentMissing means the record has no userAgent value at all
	UserAgentMissing UserAgentKind = iota
	// UserAgentStructured means userAgent is a parsed descriptor object
	UserAgentStructured
	// UserAgentLegacy means userAgent is the raw header string (older records)
	UserAgentLegacy
)

func (k UserAgentKind) String() string {
	switch k {
	case UserAgentStructured:
		return "structured"
	case UserAgentLegacy:
		return "legacy"
	default:
		return "missing"
	}
}

// ParseUserAgentKind is the inverse of UserAgentKind.String
func ParseUserAgentKind(s string) UserAgentKind {
	switch s {
	case "structured":
		return UserAgentStructured
	case "legacy":
		return UserAgentLegacy
	default:
		return UserAgentMissing
	}
}

// UserAgentDescriptor is the structured user-agent object written by the tracker
type UserAgentDescriptor struct {
	Browser   string `json:"browser,omitempty"`
	Version   string `json:"version,omitempty"`
	OS        string `json:"os,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Source    string `json:"source,omitempty"`
	Device    string `json:"device,omitempty"`
	IsMobile  bool   `json:"isMobile"`
	IsDesktop bool   `json:"isDesktop"`
	IsTablet  bool   `json:"isTablet"`
	IsBot     bool   `json:"isBot"`
}

// UserAgentField is the decoded form of the userAgent JSON value.
// Exactly one of Descriptor or Raw is meaningful, selected by Kind.
type UserAgentField struct {
	Kind       UserAgentKind
	Descriptor UserAgentDescriptor
	Raw        string
}

// StructuredUserAgent wraps a descriptor
func StructuredUserAgent(d UserAgentDescriptor) UserAgentField {
	return UserAgentField{Kind: UserAgentStructured, Descriptor: d}
}

// LegacyUserAgent wraps a raw header string
func LegacyUserAgent(raw string) UserAgentField {
	return UserAgentField{Kind: UserAgentLegacy, Raw: raw}
}

// UnmarshalJSON resolves the object/string/absent union once at decode time.
// Values of any other JSON type are treated as missing; it never returns an error.
func (f *UserAgentField) UnmarshalJSON(data []byte) error {
	*f = UserAgentField{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '{':
		fields, err := objectFields(data)
		if err != nil {
			return nil
		}
		f.Kind = UserAgentStructured
		f.Descriptor = decodeDescriptor(fields)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		f.Kind = UserAgentLegacy
		f.Raw = s
	}
	return nil
}

// MarshalJSON writes the value back in the shape it was read from
func (f UserAgentField) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case UserAgentStructured:
		return json.Marshal(f.Descriptor)
	case UserAgentLegacy:
		return json.Marshal(f.Raw)
	default:
		return []byte("null"), nil
	}
}

// VisitRecord is one logged page visit. Records are append-only and never mutated.
type VisitRecord struct {
	Timestamp string         `json:"timestamp"`
	IP        string         `json:"ip"`
	UserAgent UserAgentField `json:"userAgent"`

	// Flat legacy fields, only consulted when UserAgent is missing
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`

	Referrer string `json:"referrer,omitempty"`
	URL      string `json:"url,omitempty"`
}

// timestampLayouts are tried in order; RFC3339 also accepts fractional seconds
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time parses the stored timestamp. ok is false when it cannot be parsed.
func (r VisitRecord) Time() (t time.Time, ok bool) {
	s := strings.TrimSpace(r.Timestamp)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Hash returns a stable SHA256 identity used to deduplicate imported records
func (r VisitRecord) Hash() string {
	h := sha256.New()
	h.Write([]byte(r.Timestamp))
	h.Write([]byte{'|'})
	h.Write([]byte(r.IP))
	h.Write([]byte{'|'})
	h.Write([]byte(r.UserAgent.Kind.String()))
	h.Write([]byte{'|'})
	switch r.UserAgent.Kind {
	case UserAgentStructured:
		d := r.UserAgent.Descriptor
		h.Write([]byte(d.Browser + "|" + d.OS + "|" + d.Device + "|" + d.Source))
	case UserAgentLegacy:
		h.Write([]byte(r.UserAgent.Raw))
	default:
		h.Write([]byte(r.Browser + "|" + r.OS + "|" + r.Device))
	}
	h.Write([]byte{'|'})
	h.Write([]byte(r.URL))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatTimestamp renders t the way visit timestamps are stored (UTC, millisecond precision)
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Collection is the whole persisted visit log.
// TotalVisits is a running counter kept by the writer; readers must not trust it
// as the record count.
type Collection struct {
	TotalVisits int64         `json:"totalVisits"`
	Visits      []VisitRecord `json:"visits"`
}

// EmptyCollection returns the canonical empty log
func EmptyCollection() *Collection {
	return &Collection{TotalVisits: 0, Visits: []VisitRecord{}}
}
