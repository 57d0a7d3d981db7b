package stats

import "strings"

// Location labels
const (
	UnknownLocation  = "Desconhecido"
	LocalCountry     = "Brasil"
	LocalCity        = "Local"
	RegionLocalDev   = "Desenvolvimento Local"
	RegionLocalNet   = "Rede Local"
	loopbackIPv4     = "127.0.0.1"
	ipv4MappedPrefix = "::ffff:"
)

// Location is an approximate place for a visitor
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Locator resolves a normalized IP to a Location
type Locator interface {
	Locate(ip string) Location
}

// NormalizeIP strips the IPv4-mapped IPv6 prefix and collapses ::1 to 127.0.0.1.
// It is the identity key for unique-visitor counting.
func NormalizeIP(ip string) string {
	ip = strings.TrimPrefix(strings.TrimSpace(ip), ipv4MappedPrefix)
	if ip == "::1" {
		return loopbackIPv4
	}
	return ip
}

// HeuristicLocator classifies IPs by prefix only; it performs no real geolocation
type HeuristicLocator struct{}

// Locate maps loopback and private-looking ranges to local labels and everything else to unknown
func (HeuristicLocator) Locate(ip string) Location {
	ip = NormalizeIP(ip)

	if ip == loopbackIPv4 || ip == "localhost" {
		return Location{Country: LocalCountry, Region: RegionLocalDev, City: LocalCity}
	}

	if strings.HasPrefix(ip, "192.168.") || strings.HasPrefix(ip, "10.") || strings.HasPrefix(ip, "172.") {
		return Location{Country: LocalCountry, Region: RegionLocalNet, City: LocalCity}
	}

	return Location{Country: UnknownLocation, Region: UnknownLocation, City: UnknownLocation}
}

// IsResolved reports whether the location carries anything beyond the unknown sentinel
func (l Location) IsResolved() bool {
	return l.Country != UnknownLocation
}
