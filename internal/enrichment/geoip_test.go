package enrichment

import (
	"path/filepath"
	"testing"

	"sitestats/internal/stats"

	"github.com/pterm/pterm"
)

func TestGeoIPLocator_MissingDatabaseFallsBack(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)

	locator, err := NewGeoIPLocator(filepath.Join(t.TempDir(), "missing.mmdb"), 0, logger)
	if err == nil {
		t.Fatal("Expected error for missing database")
	}
	if locator == nil {
		t.Fatal("Expected a usable locator even without a database")
	}
	if locator.IsEnabled() {
		t.Error("Expected locator to report disabled")
	}

	tests := []struct {
		ip      string
		country string
		region  string
	}{
		{"127.0.0.1", stats.LocalCountry, stats.RegionLocalDev},
		{"::ffff:192.168.0.2", stats.LocalCountry, stats.RegionLocalNet},
		{"8.8.8.8", stats.UnknownLocation, stats.UnknownLocation},
	}

	for _, tc := range tests {
		t.Run(tc.ip, func(t *testing.T) {
			got := locator.Locate(tc.ip)
			if got.Country != tc.country || got.Region != tc.region {
				t.Errorf("Expected %s / %s, got %+v", tc.country, tc.region, got)
			}
		})
	}

	if locator.CacheSize() != 0 {
		t.Errorf("Expected no cached entries without a database, got %d", locator.CacheSize())
	}
	if err := locator.Close(); err != nil {
		t.Errorf("Expected Close to succeed, got %v", err)
	}
}

func TestLocalizedName(t *testing.T) {
	tests := []struct {
		name  string
		names map[string]string
		want  string
	}{
		{"portuguese first", map[string]string{"en": "Brazil", "pt-BR": "Brasil"}, "Brasil"},
		{"english fallback", map[string]string{"en": "Germany", "de": "Deutschland"}, "Germany"},
		{"nothing", map[string]string{"de": "Deutschland"}, ""},
		{"nil map", nil, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := localizedName(tc.names); got != tc.want {
				t.Errorf("Expected '%s', got '%s'", tc.want, got)
			}
		})
	}
}
