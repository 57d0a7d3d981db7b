package stats

import (
	"math"
	"strconv"
	"time"

	"sitestats/internal/parser/useragent"
	"sitestats/internal/visits"
)

const (
	topDimensions = 10
	topIPs        = 5
)

// Weekdays in report order, indexed by time.Weekday
var Weekdays = [7]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"}

// visit is a record after normalization; records whose timestamp does not parse
// keep hasTime false and are skipped by the time-based reducers
type visit struct {
	ip       string
	at       time.Time
	hasTime  bool
	agent    useragent.Normalized
	location Location
}

func prepare(records []visits.VisitRecord, locator Locator) []visit {
	prepared := make([]visit, 0, len(records))
	for _, r := range records {
		ip := NormalizeIP(r.IP)
		at, ok := r.Time()
		prepared = append(prepared, visit{
			ip:       ip,
			at:       at,
			hasTime:  ok,
			agent:    useragent.Normalize(r),
			location: locator.Locate(ip),
		})
	}
	return prepared
}

func summarize(prepared []visit, now time.Time) Summary {
	summary := Summary{
		TotalVisits:    len(prepared),
		UniqueVisitors: countUnique(prepared, func(visit) bool { return true }),
		GeneratedAt:    visits.FormatTimestamp(now),
	}

	var first, last time.Time
	seen := false
	for _, v := range prepared {
		if !v.hasTime {
			continue
		}
		if !seen || v.at.Before(first) {
			first = v.at
		}
		if !seen || v.at.After(last) {
			last = v.at
		}
		seen = true
	}

	if seen {
		f := visits.FormatTimestamp(first)
		l := visits.FormatTimestamp(last)
		summary.FirstVisit = &f
		summary.LastVisit = &l
	}

	return summary
}

func reduceDevices(prepared []visit) DeviceStats {
	deviceTypes := NewDenseCounter(useragent.DeviceClasses...)
	browsers := NewCounter()
	systems := NewCounter()
	platforms := NewCounter()

	for _, v := range prepared {
		deviceTypes.Increment(v.agent.Device)
		browsers.Increment(v.agent.Browser)
		systems.Increment(v.agent.OS)
		platforms.Increment(v.agent.Platform)
	}

	return DeviceStats{
		DeviceTypes:      deviceTypes.Ordered(),
		Browsers:         browsers.TopN(topDimensions),
		OperatingSystems: systems.TopN(topDimensions),
		Platforms:        platforms.TopN(topDimensions),
	}
}

func reduceLocations(prepared []visit) LocationStats {
	countries := NewCounter()
	regions := NewCounter()
	cities := NewCounter()
	ips := NewCounter()

	for _, v := range prepared {
		countries.Increment(v.location.Country)
		regions.Increment(v.location.Region)
		cities.Increment(v.location.City)
		if v.ip != "" {
			ips.Increment(v.ip)
		}
	}

	return LocationStats{
		Countries: countries.TopN(topDimensions),
		Regions:   regions.TopN(topDimensions),
		Cities:    cities.TopN(topDimensions),
		TopIPs:    ips.TopN(topIPs),
	}
}

func reduceTemporal(prepared []visit, loc *time.Location) TimeAnalysis {
	hourKeys := make([]string, 24)
	for h := range hourKeys {
		hourKeys[h] = hourKey(h)
	}
	hourly := NewDenseCounter(hourKeys...)
	weekdays := NewDenseCounter(Weekdays[:]...)
	daily := NewCounter()
	monthly := NewCounter()

	for _, v := range prepared {
		if !v.hasTime {
			continue
		}
		local := v.at.In(loc)
		hourly.Increment(hourKey(local.Hour()))
		weekdays.Increment(Weekdays[local.Weekday()])
		daily.Increment(local.Format("2006-01-02"))
		monthly.Increment(local.Format("2006-01"))
	}

	return TimeAnalysis{
		Hourly:   hourly.Ordered(),
		Daily:    daily.SortedByKey(),
		Monthly:  monthly.SortedByKey(),
		Weekdays: weekdays.Ordered(),
	}
}

func reduceTrends(prepared []visit, now time.Time) Trends {
	total24, unique24 := window(prepared, now.Add(-24*time.Hour))
	total7, unique7 := window(prepared, now.Add(-7*24*time.Hour))
	total30, unique30 := window(prepared, now.Add(-30*24*time.Hour))

	return Trends{
		Last24Hours: HourlyTrend{
			TotalVisits:          total24,
			UniqueVisitors:       unique24,
			AverageVisitsPerHour: average(total24, 24),
		},
		Last7Days: DailyTrend{
			TotalVisits:         total7,
			UniqueVisitors:      unique7,
			AverageVisitsPerDay: average(total7, 7),
		},
		Last30Days: DailyTrend{
			TotalVisits:         total30,
			UniqueVisitors:      unique30,
			AverageVisitsPerDay: average(total30, 30),
		},
	}
}

// window counts visits at or after start, and their distinct IPs
func window(prepared []visit, start time.Time) (total, unique int) {
	inWindow := func(v visit) bool {
		return v.hasTime && !v.at.Before(start)
	}
	for _, v := range prepared {
		if inWindow(v) {
			total++
		}
	}
	return total, countUnique(prepared, inWindow)
}

// countUnique counts distinct non-empty normalized IPs among the visits matching keep
func countUnique(prepared []visit, keep func(visit) bool) int {
	seen := make(map[string]struct{})
	for _, v := range prepared {
		if v.ip == "" || !keep(v) {
			continue
		}
		seen[v.ip] = struct{}{}
	}
	return len(seen)
}

// average rounds total/units to one decimal place
func average(total, units int) float64 {
	return math.Round(float64(total)/float64(units)*10) / 10
}

func hourKey(h int) string {
	return strconv.Itoa(h) + ":00"
}
