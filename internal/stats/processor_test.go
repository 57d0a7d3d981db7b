package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"sitestats/internal/visits"

	"github.com/pterm/pterm"
)

type staticLoader struct {
	collection *visits.Collection
}

func (l staticLoader) Load(ctx context.Context) *visits.Collection {
	return l.collection
}

type panickingLocator struct{}

func (panickingLocator) Locate(ip string) Location {
	panic("lookup exploded")
}

var fixedNow = time.Date(2025, 5, 15, 12, 30, 0, 0, time.UTC)

func newTestProcessor(records []visits.VisitRecord, storedCounter int64) *Processor {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	loader := staticLoader{collection: &visits.Collection{TotalVisits: storedCounter, Visits: records}}
	p := NewProcessor(loader, nil, time.UTC, logger)
	p.now = func() time.Time { return fixedNow }
	return p
}

func process(t *testing.T, p *Processor) *StatsReport {
	t.Helper()
	report, err := p.ProcessAllStats(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllStats failed: %v", err)
	}
	return report
}

func ago(d time.Duration) string {
	return visits.FormatTimestamp(fixedNow.Add(-d))
}

func chromeDesktop() visits.UserAgentField {
	return visits.StructuredUserAgent(visits.UserAgentDescriptor{Device: "desktop", Browser: "Chrome", OS: "Windows"})
}

func TestProcessAllStats_LocalVisitScenario(t *testing.T) {
	p := newTestProcessor([]visits.VisitRecord{
		{Timestamp: visits.FormatTimestamp(fixedNow), IP: "127.0.0.1", UserAgent: chromeDesktop()},
	}, 1)

	report := process(t, p)

	if report.Summary.TotalVisits != 1 {
		t.Errorf("Expected totalVisits 1, got %d", report.Summary.TotalVisits)
	}
	if report.Summary.UniqueVisitors != 1 {
		t.Errorf("Expected uniqueVisitors 1, got %d", report.Summary.UniqueVisitors)
	}
	if got := report.Devices.DeviceTypes.Get("desktop"); got != 1 {
		t.Errorf("Expected deviceTypes.desktop 1, got %d", got)
	}
	if len(report.Locations.Countries) != 1 || report.Locations.Countries.Get("Brasil") != 1 {
		t.Errorf("Expected countries {Brasil: 1}, got %+v", report.Locations.Countries)
	}
	if got := report.Locations.Regions.Get(RegionLocalDev); got != 1 {
		t.Errorf("Expected region '%s' 1, got %d", RegionLocalDev, got)
	}
	if report.Trends.Last24Hours.TotalVisits != 1 {
		t.Errorf("Expected last24hours.totalVisits 1, got %d", report.Trends.Last24Hours.TotalVisits)
	}
}

func TestProcessAllStats_MappedIPv4Scenario(t *testing.T) {
	p := newTestProcessor([]visits.VisitRecord{
		{Timestamp: ago(time.Hour), IP: "::ffff:10.0.0.5"},
		{Timestamp: ago(2 * time.Hour), IP: "10.0.0.5"},
	}, 2)

	report := process(t, p)

	if report.Summary.UniqueVisitors != 1 {
		t.Errorf("Expected uniqueVisitors 1, got %d", report.Summary.UniqueVisitors)
	}
	if len(report.Locations.TopIPs) != 1 || report.Locations.TopIPs.Get("10.0.0.5") != 2 {
		t.Errorf("Expected topIPs {10.0.0.5: 2}, got %+v", report.Locations.TopIPs)
	}
	if got := report.Locations.Regions.Get(RegionLocalNet); got != 2 {
		t.Errorf("Expected region '%s' 2, got %d", RegionLocalNet, got)
	}
	if report.Trends.Last24Hours.UniqueVisitors != 1 {
		t.Errorf("Expected trend uniqueness by normalized IP, got %d", report.Trends.Last24Hours.UniqueVisitors)
	}
}

func TestProcessAllStats_GooglebotScenario(t *testing.T) {
	p := newTestProcessor([]visits.VisitRecord{
		{
			Timestamp: ago(time.Minute),
			IP:        "66.249.66.1",
			UserAgent: visits.LegacyUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"),
		},
	}, 1)

	report := process(t, p)

	types := report.Devices.DeviceTypes
	if types.Get("bot") != 1 {
		t.Errorf("Expected deviceTypes.bot 1, got %d", types.Get("bot"))
	}
	if types.Get("mobile") != 0 || types.Get("desktop") != 0 {
		t.Errorf("Expected no mobile/desktop count, got %+v", types)
	}
	if report.Locations.Countries.Get(UnknownLocation) != 1 {
		t.Errorf("Expected public IP to be unresolved, got %+v", report.Locations.Countries)
	}
}

func TestProcessAllStats_IgnoresStoredCounter(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: ago(time.Hour), IP: "1.1.1.1"},
		{Timestamp: ago(time.Hour), IP: "1.1.1.1"},
		{Timestamp: ago(time.Hour), IP: "2.2.2.2"},
	}
	report := process(t, newTestProcessor(records, 500))

	if report.Summary.TotalVisits != 3 {
		t.Errorf("Expected totalVisits 3, got %d", report.Summary.TotalVisits)
	}
	if report.Summary.UniqueVisitors != 2 {
		t.Errorf("Expected uniqueVisitors 2, got %d", report.Summary.UniqueVisitors)
	}
}

func TestProcessAllStats_EmptyCollection(t *testing.T) {
	p := newTestProcessor([]visits.VisitRecord{}, 0)
	report := process(t, p)

	if report.Summary.TotalVisits != 0 || report.Summary.UniqueVisitors != 0 {
		t.Errorf("Expected zero counts, got %+v", report.Summary)
	}
	if report.Summary.FirstVisit != nil || report.Summary.LastVisit != nil {
		t.Errorf("Expected null first/last visit, got %v / %v", report.Summary.FirstVisit, report.Summary.LastVisit)
	}
	if report.Summary.GeneratedAt == "" {
		t.Error("Expected generatedAt to be set")
	}
	if len(report.TimeAnalysis.Hourly) != 24 {
		t.Errorf("Expected 24 hourly buckets, got %d", len(report.TimeAnalysis.Hourly))
	}
	if len(report.TimeAnalysis.Weekdays) != 7 {
		t.Errorf("Expected 7 weekday buckets, got %d", len(report.TimeAnalysis.Weekdays))
	}
	if len(report.Devices.DeviceTypes) != 5 || report.Devices.DeviceTypes.Sum() != 0 {
		t.Errorf("Expected 5 zero device buckets, got %+v", report.Devices.DeviceTypes)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	body := string(data)
	for _, fragment := range []string{
		`"firstVisit":null`,
		`"lastVisit":null`,
		`"browsers":{}`,
		`"topIPs":{}`,
		`"daily":{}`,
		`"monthly":{}`,
		`"last24hours":{"totalVisits":0,"uniqueVisitors":0,"averageVisitsPerHour":0}`,
		`"last30days":{"totalVisits":0,"uniqueVisitors":0,"averageVisitsPerDay":0}`,
	} {
		if !strings.Contains(body, fragment) {
			t.Errorf("Expected %s in %s", fragment, body)
		}
	}
}

func TestProcessAllStats_NilVisits(t *testing.T) {
	report := process(t, newTestProcessor(nil, 12))
	if report.Summary.TotalVisits != 0 {
		t.Errorf("Expected totalVisits 0, got %d", report.Summary.TotalVisits)
	}
}

func TestProcessAllStats_TopBrowsers(t *testing.T) {
	var records []visits.VisitRecord
	for i := 1; i <= 15; i++ {
		for j := 0; j < i; j++ {
			records = append(records, visits.VisitRecord{
				Timestamp: ago(time.Hour),
				IP:        "8.8.8.8",
				UserAgent: visits.StructuredUserAgent(visits.UserAgentDescriptor{Browser: fmt.Sprintf("Browser%02d", i)}),
			})
		}
	}

	report := process(t, newTestProcessor(records, 0))

	browsers := report.Devices.Browsers
	if len(browsers) != 10 {
		t.Fatalf("Expected 10 browsers, got %d", len(browsers))
	}
	for i, entry := range browsers {
		want := fmt.Sprintf("Browser%02d", 15-i)
		if entry.Key != want || entry.Count != 15-i {
			t.Errorf("Position %d: expected %s=%d, got %s=%d", i, want, 15-i, entry.Key, entry.Count)
		}
	}
}

func TestProcessAllStats_TopIPsLimit(t *testing.T) {
	var records []visits.VisitRecord
	for i := 1; i <= 8; i++ {
		for j := 0; j < i; j++ {
			records = append(records, visits.VisitRecord{Timestamp: ago(time.Hour), IP: fmt.Sprintf("192.168.0.%d", i)})
		}
	}

	report := process(t, newTestProcessor(records, 0))

	if len(report.Locations.TopIPs) != 5 {
		t.Fatalf("Expected 5 top IPs, got %d", len(report.Locations.TopIPs))
	}
	if report.Locations.TopIPs[0].Key != "192.168.0.8" {
		t.Errorf("Expected busiest IP first, got %s", report.Locations.TopIPs[0].Key)
	}
}

func TestProcessAllStats_Temporal(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: "2025-05-15T12:06:30.000Z", IP: "1.1.1.1"}, // Thursday
		{Timestamp: "2025-05-15T12:59:59.000Z", IP: "1.1.1.1"},
		{Timestamp: "2025-04-30T00:00:00.000Z", IP: "1.1.1.1"}, // Wednesday
		{Timestamp: "2024-12-29T23:15:00.000Z", IP: "1.1.1.1"}, // Sunday
	}

	report := process(t, newTestProcessor(records, 0))
	ta := report.TimeAnalysis

	if len(ta.Hourly) != 24 || ta.Hourly[0].Key != "0:00" || ta.Hourly[23].Key != "23:00" {
		t.Errorf("Expected dense hourly 0:00..23:00, got %v", ta.Hourly.Keys())
	}
	if ta.Hourly.Get("12:00") != 2 || ta.Hourly.Get("0:00") != 1 || ta.Hourly.Get("23:00") != 1 {
		t.Errorf("Unexpected hourly buckets: %+v", ta.Hourly)
	}

	wantDaily := []string{"2024-12-29", "2025-04-30", "2025-05-15"}
	if got := ta.Daily.Keys(); strings.Join(got, ",") != strings.Join(wantDaily, ",") {
		t.Errorf("Expected daily keys %v, got %v", wantDaily, got)
	}
	wantMonthly := []string{"2024-12", "2025-04", "2025-05"}
	if got := ta.Monthly.Keys(); strings.Join(got, ",") != strings.Join(wantMonthly, ",") {
		t.Errorf("Expected monthly keys %v, got %v", wantMonthly, got)
	}
	if ta.Monthly.Get("2025-05") != 2 {
		t.Errorf("Expected 2 visits in 2025-05, got %d", ta.Monthly.Get("2025-05"))
	}

	if ta.Weekdays[0].Key != "Domingo" || ta.Weekdays[6].Key != "Sábado" {
		t.Errorf("Expected weekdays Domingo..Sábado, got %v", ta.Weekdays.Keys())
	}
	if ta.Weekdays.Get("Quinta") != 2 || ta.Weekdays.Get("Quarta") != 1 || ta.Weekdays.Get("Domingo") != 1 {
		t.Errorf("Unexpected weekday buckets: %+v", ta.Weekdays)
	}
}

func TestProcessAllStats_TemporalUsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("BRT", -3*60*60)
	p := newTestProcessor([]visits.VisitRecord{
		{Timestamp: "2025-05-15T01:00:00.000Z", IP: "1.1.1.1"},
	}, 0)
	p.location = zone

	ta := process(t, p).TimeAnalysis
	if ta.Hourly.Get("22:00") != 1 {
		t.Errorf("Expected visit in 22:00 local bucket, got %+v", ta.Hourly)
	}
	if ta.Daily.Get("2025-05-14") != 1 {
		t.Errorf("Expected visit on 2025-05-14 local, got %+v", ta.Daily)
	}
}

func TestProcessAllStats_Trends(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: ago(time.Hour), IP: "1.1.1.1"},
		{Timestamp: ago(24 * time.Hour), IP: "2.2.2.2"}, // exactly on the 24h boundary
		{Timestamp: ago(3 * 24 * time.Hour), IP: "::ffff:1.1.1.1"},
		{Timestamp: ago(10 * 24 * time.Hour), IP: "3.3.3.3"},
		{Timestamp: ago(40 * 24 * time.Hour), IP: "4.4.4.4"},
	}

	trends := process(t, newTestProcessor(records, 0)).Trends

	if trends.Last24Hours.TotalVisits != 2 || trends.Last24Hours.UniqueVisitors != 2 {
		t.Errorf("Unexpected 24h trend: %+v", trends.Last24Hours)
	}
	if trends.Last24Hours.AverageVisitsPerHour != 0.1 {
		t.Errorf("Expected 0.1 visits/hour, got %v", trends.Last24Hours.AverageVisitsPerHour)
	}
	if trends.Last7Days.TotalVisits != 3 || trends.Last7Days.UniqueVisitors != 2 {
		t.Errorf("Unexpected 7d trend: %+v", trends.Last7Days)
	}
	if trends.Last7Days.AverageVisitsPerDay != 0.4 {
		t.Errorf("Expected 0.4 visits/day, got %v", trends.Last7Days.AverageVisitsPerDay)
	}
	if trends.Last30Days.TotalVisits != 4 || trends.Last30Days.UniqueVisitors != 3 {
		t.Errorf("Unexpected 30d trend: %+v", trends.Last30Days)
	}
	if trends.Last30Days.AverageVisitsPerDay != 0.1 {
		t.Errorf("Expected 0.1 visits/day, got %v", trends.Last30Days.AverageVisitsPerDay)
	}
}

func TestProcessAllStats_UnparsableTimestamp(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: "not a date", IP: "1.1.1.1", UserAgent: chromeDesktop()},
		{Timestamp: "2025-05-10T08:00:00.000Z", IP: "2.2.2.2", UserAgent: chromeDesktop()},
		{Timestamp: "2025-05-12T08:00:00.000Z", IP: "2.2.2.2", UserAgent: chromeDesktop()},
	}

	report := process(t, newTestProcessor(records, 0))

	if report.Summary.TotalVisits != 3 {
		t.Errorf("Expected every record counted, got %d", report.Summary.TotalVisits)
	}
	if report.Devices.DeviceTypes.Get("desktop") != 3 {
		t.Errorf("Expected 3 desktop visits, got %d", report.Devices.DeviceTypes.Get("desktop"))
	}
	if got := report.TimeAnalysis.Hourly.Sum(); got != 2 {
		t.Errorf("Expected only parsable timestamps bucketed, got %d", got)
	}
	if report.Summary.FirstVisit == nil || *report.Summary.FirstVisit != "2025-05-10T08:00:00.000Z" {
		t.Errorf("Unexpected firstVisit: %v", report.Summary.FirstVisit)
	}
	if report.Summary.LastVisit == nil || *report.Summary.LastVisit != "2025-05-12T08:00:00.000Z" {
		t.Errorf("Unexpected lastVisit: %v", report.Summary.LastVisit)
	}
}

func TestProcessAllStats_DistributionsSumToTotal(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: ago(time.Hour), IP: "127.0.0.1", UserAgent: chromeDesktop()},
		{Timestamp: ago(2 * time.Hour), IP: "::1", UserAgent: visits.LegacyUserAgent("Mozilla/5.0 (iPad; CPU OS 17_0)")},
		{Timestamp: ago(3 * time.Hour), IP: "172.16.0.4", Browser: "Firefox", Device: "mobile"},
		{Timestamp: ago(4 * time.Hour), IP: "200.1.2.3", UserAgent: visits.StructuredUserAgent(visits.UserAgentDescriptor{Device: "fridge"})},
		{Timestamp: ago(5 * time.Hour), IP: "", UserAgent: visits.LegacyUserAgent("")},
	}

	report := process(t, newTestProcessor(records, 0))
	total := report.Summary.TotalVisits

	for name, counts := range map[string]OrderedCounts{
		"deviceTypes":      report.Devices.DeviceTypes,
		"browsers":         report.Devices.Browsers,
		"operatingSystems": report.Devices.OperatingSystems,
		"platforms":        report.Devices.Platforms,
		"countries":        report.Locations.Countries,
		"regions":          report.Locations.Regions,
		"cities":           report.Locations.Cities,
		"hourly":           report.TimeAnalysis.Hourly,
		"daily":            report.TimeAnalysis.Daily,
		"monthly":          report.TimeAnalysis.Monthly,
		"weekdays":         report.TimeAnalysis.Weekdays,
	} {
		if counts.Sum() != total {
			t.Errorf("Expected %s to sum to %d, got %d", name, total, counts.Sum())
		}
	}

	if report.Devices.DeviceTypes.Get("unknown") != 1 {
		t.Errorf("Expected unrecognized device in unknown bucket, got %+v", report.Devices.DeviceTypes)
	}
	if report.Summary.UniqueVisitors > total {
		t.Errorf("uniqueVisitors %d exceeds totalVisits %d", report.Summary.UniqueVisitors, total)
	}
	// 127.0.0.1 and ::1 collapse, the empty IP is not a visitor
	if report.Summary.UniqueVisitors != 3 {
		t.Errorf("Expected 3 unique visitors, got %d", report.Summary.UniqueVisitors)
	}
}

func TestProcessAllStats_Idempotent(t *testing.T) {
	records := []visits.VisitRecord{
		{Timestamp: ago(time.Hour), IP: "10.1.1.1", UserAgent: chromeDesktop()},
		{Timestamp: ago(50 * time.Hour), IP: "8.8.4.4", UserAgent: visits.LegacyUserAgent("Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0")},
	}
	p := newTestProcessor(records, 2)

	first := process(t, p)
	p.now = func() time.Time { return fixedNow.Add(time.Second) }
	second := process(t, p)

	if first.Summary.GeneratedAt == second.Summary.GeneratedAt {
		t.Error("Expected generatedAt to move with the clock")
	}
	first.Summary.GeneratedAt = ""
	second.Summary.GeneratedAt = ""

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("Expected identical reports apart from generatedAt:\n%s\n%s", a, b)
	}
}

func TestProcessAllStats_RecoversPanic(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	loader := staticLoader{collection: &visits.Collection{Visits: []visits.VisitRecord{{IP: "1.1.1.1"}}}}
	p := NewProcessor(loader, panickingLocator{}, time.UTC, logger)

	report, err := p.ProcessAllStats(context.Background())
	if err == nil {
		t.Fatal("Expected an error from a panicking reducer")
	}
	if report != nil {
		t.Errorf("Expected no partial report, got %+v", report)
	}
}

func TestProcessAllStats_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestProcessor(nil, 0).ProcessAllStats(ctx); err == nil {
		t.Error("Expected canceled context to be reported")
	}
}

func TestHeuristicLocator(t *testing.T) {
	tests := []struct {
		ip   string
		want Location
	}{
		{"127.0.0.1", Location{LocalCountry, RegionLocalDev, LocalCity}},
		{"::1", Location{LocalCountry, RegionLocalDev, LocalCity}},
		{"localhost", Location{LocalCountry, RegionLocalDev, LocalCity}},
		{"::ffff:192.168.1.20", Location{LocalCountry, RegionLocalNet, LocalCity}},
		{"10.0.0.5", Location{LocalCountry, RegionLocalNet, LocalCity}},
		{"172.31.0.1", Location{LocalCountry, RegionLocalNet, LocalCity}},
		{"8.8.8.8", Location{UnknownLocation, UnknownLocation, UnknownLocation}},
		{"", Location{UnknownLocation, UnknownLocation, UnknownLocation}},
	}

	for _, tc := range tests {
		t.Run(tc.ip, func(t *testing.T) {
			if got := (HeuristicLocator{}).Locate(tc.ip); got != tc.want {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	tests := map[string]string{
		"::ffff:10.0.0.5": "10.0.0.5",
		"::1":             "127.0.0.1",
		"10.0.0.5":        "10.0.0.5",
		"2001:db8::1":     "2001:db8::1",
		"":                "",
	}
	for in, want := range tests {
		if got := NormalizeIP(in); got != want {
			t.Errorf("NormalizeIP(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestProcessAllStats_DescriptorWithoutDevice(t *testing.T) {
	p := newTestProcessor([]visits.VisitRecord{
		{
			Timestamp: ago(time.Hour),
			IP:        "10.0.0.8",
			UserAgent: visits.StructuredUserAgent(visits.UserAgentDescriptor{Browser: "Chrome", OS: "Windows 10", IsDesktop: true}),
		},
		{
			Timestamp: ago(time.Hour),
			IP:        "66.249.66.1",
			UserAgent: visits.StructuredUserAgent(visits.UserAgentDescriptor{Browser: "unknown", IsBot: true}),
		},
	}, 2)

	types := process(t, p).Devices.DeviceTypes
	if types.Get("unknown") != 2 {
		t.Errorf("Expected both visits under unknown, got %+v", types)
	}
	if types.Get("desktop") != 0 || types.Get("bot") != 0 {
		t.Errorf("Expected stored flags to be ignored, got %+v", types)
	}
}
