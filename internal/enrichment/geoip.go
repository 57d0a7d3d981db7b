package enrichment

import (
	"fmt"
	"net"
	"sync"

	"sitestats/internal/stats"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// Name lookup order for localized place names
var nameLanguages = []string{"pt-BR", "en"}

// GeoIPLocator resolves public IPs with a MaxMind City database.
// Loopback and private ranges keep the heuristic labels.
type GeoIPLocator struct {
	cityDB    *geoip2.Reader
	fallback  stats.HeuristicLocator
	logger    *pterm.Logger
	mu        sync.RWMutex
	cache     map[string]stats.Location
	cacheSize int
}

// NewGeoIPLocator opens the City database. The returned locator is usable even when
// the database cannot be opened; it then behaves like the heuristic locator.
func NewGeoIPLocator(cityDBPath string, cacheSize int, logger *pterm.Logger) (*GeoIPLocator, error) {
	if cacheSize <= 0 {
		cacheSize = 10000
	}

	g := &GeoIPLocator{
		logger:    logger,
		cache:     make(map[string]stats.Location),
		cacheSize: cacheSize,
	}

	db, err := geoip2.Open(cityDBPath)
	if err != nil {
		return g, fmt.Errorf("open GeoIP city database %s: %w", cityDBPath, err)
	}
	g.cityDB = db

	logger.Debug("GeoIP city database loaded", logger.Args("path", cityDBPath))
	return g, nil
}

// IsEnabled reports whether a database is loaded
func (g *GeoIPLocator) IsEnabled() bool {
	return g.cityDB != nil
}

// Locate implements stats.Locator
func (g *GeoIPLocator) Locate(ip string) stats.Location {
	location := g.fallback.Locate(ip)
	if location.IsResolved() || g.cityDB == nil {
		return location
	}

	ip = stats.NormalizeIP(ip)

	g.mu.RLock()
	cached, ok := g.cache[ip]
	g.mu.RUnlock()
	if ok {
		return cached
	}

	location = g.lookup(ip, location)

	g.mu.Lock()
	if len(g.cache) >= g.cacheSize {
		g.cache = make(map[string]stats.Location)
	}
	g.cache[ip] = location
	g.mu.Unlock()

	return location
}

func (g *GeoIPLocator) lookup(ip string, unresolved stats.Location) stats.Location {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return unresolved
	}

	record, err := g.cityDB.City(parsed)
	if err != nil {
		g.logger.Trace("GeoIP lookup failed", g.logger.Args("ip", ip, "error", err))
		return unresolved
	}

	location := unresolved
	if name := localizedName(record.Country.Names); name != "" {
		location.Country = name
	}
	if len(record.Subdivisions) > 0 {
		if name := localizedName(record.Subdivisions[0].Names); name != "" {
			location.Region = name
		}
	}
	if name := localizedName(record.City.Names); name != "" {
		location.City = name
	}

	return location
}

// CacheSize returns the number of cached lookups
func (g *GeoIPLocator) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

// Close releases the database
func (g *GeoIPLocator) Close() error {
	if g.cityDB == nil {
		return nil
	}
	return g.cityDB.Close()
}

func localizedName(names map[string]string) string {
	for _, lang := range nameLanguages {
		if name := names[lang]; name != "" {
			return name
		}
	}
	return ""
}
