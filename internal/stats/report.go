package stats

// StatsReport is the full dashboard payload
type StatsReport struct {
	Summary      Summary       `json:"summary"`
	Devices      DeviceStats   `json:"devices"`
	Locations    LocationStats `json:"locations"`
	TimeAnalysis TimeAnalysis  `json:"timeAnalysis"`
	Trends       Trends        `json:"trends"`
}

// Summary holds collection-wide counts
type Summary struct {
	TotalVisits    int     `json:"totalVisits"`
	UniqueVisitors int     `json:"uniqueVisitors"`
	FirstVisit     *string `json:"firstVisit"`
	LastVisit      *string `json:"lastVisit"`
	GeneratedAt    string  `json:"generatedAt"`
}

// DeviceStats holds the device/browser/OS distribution
type DeviceStats struct {
	DeviceTypes      OrderedCounts `json:"deviceTypes"`
	Browsers         OrderedCounts `json:"browsers"`
	OperatingSystems OrderedCounts `json:"operatingSystems"`
	Platforms        OrderedCounts `json:"platforms"`
}

// LocationStats holds the IP-heuristic geographic distribution
type LocationStats struct {
	Countries OrderedCounts `json:"countries"`
	Regions   OrderedCounts `json:"regions"`
	Cities    OrderedCounts `json:"cities"`
	TopIPs    OrderedCounts `json:"topIPs"`
}

// TimeAnalysis holds the temporal buckets
type TimeAnalysis struct {
	Hourly   OrderedCounts `json:"hourly"`
	Daily    OrderedCounts `json:"daily"`
	Monthly  OrderedCounts `json:"monthly"`
	Weekdays OrderedCounts `json:"weekdays"`
}

// Trends holds the rolling windows
type Trends struct {
	Last24Hours HourlyTrend `json:"last24hours"`
	Last7Days   DailyTrend  `json:"last7days"`
	Last30Days  DailyTrend  `json:"last30days"`
}

// HourlyTrend is a window averaged per hour
type HourlyTrend struct {
	TotalVisits          int     `json:"totalVisits"`
	UniqueVisitors       int     `json:"uniqueVisitors"`
	AverageVisitsPerHour float64 `json:"averageVisitsPerHour"`
}

// DailyTrend is a window averaged per day
type DailyTrend struct {
	TotalVisits         int     `json:"totalVisits"`
	UniqueVisitors      int     `json:"uniqueVisitors"`
	AverageVisitsPerDay float64 `json:"averageVisitsPerDay"`
}
