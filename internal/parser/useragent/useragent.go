// Package useragent turns the user-agent data stored on a visit into one
// canonical descriptor.
package useragent

import (
	"strings"

	"sitestats/internal/visits"
)

// Unknown is the label used when a browser, OS or platform cannot be determined
const Unknown = "Desconhecido"

// Device classes
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// DeviceClasses lists every device class in report order
var DeviceClasses = []string{DeviceMobile, DeviceDesktop, DeviceTablet, DeviceBot, DeviceUnknown}

// Normalized is the canonical user-agent descriptor.
// Exactly one flag is set unless Device is DeviceUnknown, in which case none are.
type Normalized struct {
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	Device    string `json:"device"`
	IsMobile  bool   `json:"isMobile"`
	IsDesktop bool   `json:"isDesktop"`
	IsTablet  bool   `json:"isTablet"`
	IsBot     bool   `json:"isBot"`
	Platform  string `json:"platform"`
}

// New builds a descriptor, defaulting empty labels and deriving the flags from device.
// Device values outside the known classes become DeviceUnknown.
func New(browser, os, device, platform string) Normalized {
	if browser == "" {
		browser = Unknown
	}
	if os == "" {
		os = Unknown
	}
	if platform == "" {
		platform = os
	}
	if !isDeviceClass(device) {
		device = DeviceUnknown
	}

	return Normalized{
		Browser:   browser,
		OS:        os,
		Device:    device,
		IsMobile:  device == DeviceMobile,
		IsDesktop: device == DeviceDesktop,
		IsTablet:  device == DeviceTablet,
		IsBot:     device == DeviceBot,
		Platform:  platform,
	}
}

// Normalize resolves a record's user-agent data.
// Structured descriptors win, then legacy raw strings, then the flat legacy fields.
func Normalize(record visits.VisitRecord) Normalized {
	switch record.UserAgent.Kind {
	case visits.UserAgentStructured:
		// A missing device stays unknown; the stored flags are not consulted
		d := record.UserAgent.Descriptor
		return New(d.Browser, d.OS, d.Device, d.Platform)
	case visits.UserAgentLegacy:
		return Classify(record.UserAgent.Raw)
	default:
		return New(record.Browser, record.OS, record.Device, "")
	}
}

// Descriptor converts a normalized result into the structured form stored on new records
func (n Normalized) Descriptor(source string) visits.UserAgentDescriptor {
	return visits.UserAgentDescriptor{
		Browser:   n.Browser,
		OS:        n.OS,
		Platform:  n.Platform,
		Source:    source,
		Device:    n.Device,
		IsMobile:  n.IsMobile,
		IsDesktop: n.IsDesktop,
		IsTablet:  n.IsTablet,
		IsBot:     n.IsBot,
	}
}

func isDeviceClass(device string) bool {
	for _, class := range DeviceClasses {
		if device == class {
			return true
		}
	}
	return false
}

// Classify applies the substring heuristics to a raw User-Agent header.
// Browser and OS tests are case-sensitive; bot markers are not.
// The device never comes out unknown: anything unmatched is a desktop.
func Classify(ua string) Normalized {
	browser := Unknown
	switch {
	case strings.Contains(ua, "Chrome") && !strings.Contains(ua, "Edge"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome"):
		browser = "Safari"
	case strings.Contains(ua, "Edge"):
		browser = "Edge"
	case strings.Contains(ua, "Opera"):
		browser = "Opera"
	}

	os := Unknown
	switch {
	case strings.Contains(ua, "Windows NT"):
		os = "Windows"
	case strings.Contains(ua, "Mac OS X") || strings.Contains(ua, "Macintosh"):
		os = "macOS"
	case strings.Contains(ua, "Linux") && !strings.Contains(ua, "Android"):
		os = "Linux"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		os = "iOS"
	}

	lower := strings.ToLower(ua)
	device := DeviceDesktop
	switch {
	case strings.Contains(lower, "bot") || strings.Contains(lower, "crawler") || strings.Contains(lower, "spider"):
		device = DeviceBot
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "iPhone") || strings.Contains(ua, "Android"):
		device = DeviceMobile
	case strings.Contains(ua, "Tablet") || strings.Contains(ua, "iPad"):
		device = DeviceTablet
	}

	return New(browser, os, device, os)
}
