package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

// Weekdays in display order
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var weekdayLabels = map[string]string{
	"Monday":    "月曜日",
	"Tuesday":   "火曜日",
	"Wednesday": "水曜日",
	"Thursday":  "木曜日",
	"Friday":    "金曜日",
	"Saturday":  "土曜日",
	"Sunday":    "日曜日",
}

// Insight thresholds in people
const (
	BestHourMaxAvg = 15
	BusyHourMinAvg = 25
	insightLimit   = 5
)

// HourlyData is the average count for one hour of one weekday
type HourlyData struct {
	Hour       int `json:"hour"`
	AvgCount   int `json:"avgCount"`
	DataPoints int `json:"dataPoints"`
}

// WeekdayStats aggregates one weekday
type WeekdayStats struct {
	Weekday   string         `json:"weekday"`
	Label     string         `json:"label"`
	Hours     [24]HourlyData `json:"data"`
	AvgCount  int            `json:"avgCount"`
	PeakHour  int            `json:"peakHour"`
	PeakCount int            `json:"peakCount"`
}

// DateRange is the first and last date present
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OverallStats summarises a set of rows
type OverallStats struct {
	TotalRecords int       `json:"totalRecords"`
	AvgCount     int       `json:"avgCount"`
	PeakTime     string    `json:"peakTime"`
	PeakWeekday  string    `json:"peakWeekday"`
	PeakHour     int       `json:"peakHour"`
	PeakCount    int       `json:"peakCount"`
	QuietTime    string    `json:"quietTime"`
	QuietWeekday string    `json:"quietWeekday"`
	QuietHour    int       `json:"quietHour"`
	QuietCount   int       `json:"quietCount"`
	DateRange    DateRange `json:"dateRange"`
}

// HourInsight is one notable hour across all days
type HourInsight struct {
	Hour       int `json:"hour"`
	Avg        int `json:"avg"`
	DataPoints int `json:"dataPoints"`
}

// InsightReport lists quiet and busy hours plus plain-language advice
type InsightReport struct {
	BestHours       []HourInsight `json:"bestHours"`
	BusyHours       []HourInsight `json:"busyHours"`
	QuietestWeekday string        `json:"quietestWeekday,omitempty"`
	QuietestAvg     int           `json:"quietestAvg"`
	Recommendations []string      `json:"recommendations"`
}

// round matches the dashboard's half-up rounding for non-negative values
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// WeekdayLabel returns the Japanese name of an English weekday
func WeekdayLabel(weekday string) string {
	if label, ok := weekdayLabels[weekday]; ok {
		return label
	}
	return weekday
}

// Weekly aggregates rows per weekday and hour. A weekday's average is the
// mean of its observed hourly averages; hours without data do not pull it
// toward zero.
func Weekly(rows []storage.CrowdRow) []WeekdayStats {
	buckets := make(map[string]*[24][]int, len(Weekdays))
	for _, day := range Weekdays {
		buckets[day] = &[24][]int{}
	}
	for _, r := range rows {
		b, ok := buckets[r.Weekday]
		if !ok || r.Hour < 0 || r.Hour > 23 {
			continue
		}
		b[r.Hour] = append(b[r.Hour], r.Count)
	}

	out := make([]WeekdayStats, 0, len(Weekdays))
	for _, day := range Weekdays {
		b := buckets[day]
		stats := WeekdayStats{Weekday: day, Label: weekdayLabels[day]}

		var sumAvg, peak float64
		observed := 0
		for hour := 0; hour < 24; hour++ {
			counts := b[hour]
			avg := mean(counts)
			stats.Hours[hour] = HourlyData{Hour: hour, AvgCount: round(avg), DataPoints: len(counts)}
			if len(counts) == 0 {
				continue
			}
			observed++
			sumAvg += avg
			if avg > peak {
				peak = avg
				stats.PeakHour = hour
			}
		}
		if observed > 0 {
			stats.AvgCount = round(sumAvg / float64(observed))
		}
		stats.PeakCount = round(peak)
		out = append(out, stats)
	}
	return out
}

// Overall summarises rows, or returns nil when there are none. Ties for the
// peak keep the earliest row; ties for the quietest keep the latest.
func Overall(rows []storage.CrowdRow) *OverallStats {
	if len(rows) == 0 {
		return nil
	}

	total := 0
	peak, quiet := rows[0], rows[0]
	start, end := rows[0].Date, rows[0].Date
	for _, r := range rows {
		total += r.Count
		if r.Count > peak.Count {
			peak = r
		}
		if r.Count <= quiet.Count {
			quiet = r
		}
		if r.Date < start {
			start = r.Date
		}
		if r.Date > end {
			end = r.Date
		}
	}

	return &OverallStats{
		TotalRecords: len(rows),
		AvgCount:     round(float64(total) / float64(len(rows))),
		PeakTime:     fmt.Sprintf("%s %d:00", peak.Weekday, peak.Hour),
		PeakWeekday:  peak.Weekday,
		PeakHour:     peak.Hour,
		PeakCount:    peak.Count,
		QuietTime:    fmt.Sprintf("%s %d:00", quiet.Weekday, quiet.Hour),
		QuietWeekday: quiet.Weekday,
		QuietHour:    quiet.Hour,
		QuietCount:   quiet.Count,
		DateRange:    DateRange{Start: start, End: end},
	}
}

func byHour(rows []storage.CrowdRow) [24][]int {
	var hours [24][]int
	for _, r := range rows {
		if r.Hour < 0 || r.Hour > 23 {
			continue
		}
		hours[r.Hour] = append(hours[r.Hour], r.Count)
	}
	return hours
}

// HourlyTrends returns the rounded average count for each hour of the day
func HourlyTrends(rows []storage.CrowdRow) [24]int {
	var trends [24]int
	for hour, counts := range byHour(rows) {
		trends[hour] = round(mean(counts))
	}
	return trends
}

// Insights picks the quietest hours (average at most BestHourMaxAvg) and the
// busiest (at least BusyHourMinAvg), five of each, plus the quietest weekday.
func Insights(rows []storage.CrowdRow) *InsightReport {
	report := &InsightReport{BestHours: []HourInsight{}, BusyHours: []HourInsight{}, Recommendations: []string{}}

	for hour, counts := range byHour(rows) {
		if len(counts) == 0 {
			continue
		}
		avg := mean(counts)
		hi := HourInsight{Hour: hour, Avg: round(avg), DataPoints: len(counts)}
		if avg <= BestHourMaxAvg {
			report.BestHours = append(report.BestHours, hi)
		}
		if avg >= BusyHourMinAvg {
			report.BusyHours = append(report.BusyHours, hi)
		}
	}
	sort.SliceStable(report.BestHours, func(i, j int) bool { return report.BestHours[i].Avg < report.BestHours[j].Avg })
	sort.SliceStable(report.BusyHours, func(i, j int) bool { return report.BusyHours[i].Avg > report.BusyHours[j].Avg })
	if len(report.BestHours) > insightLimit {
		report.BestHours = report.BestHours[:insightLimit]
	}
	if len(report.BusyHours) > insightLimit {
		report.BusyHours = report.BusyHours[:insightLimit]
	}

	perDay := map[string][]int{}
	for _, r := range rows {
		perDay[r.Weekday] = append(perDay[r.Weekday], r.Count)
	}
	bestAvg := math.Inf(1)
	for _, day := range Weekdays {
		counts, ok := perDay[day]
		if !ok {
			continue
		}
		if avg := mean(counts); avg < bestAvg {
			bestAvg = avg
			report.QuietestWeekday = day
		}
	}
	if report.QuietestWeekday != "" {
		report.QuietestAvg = round(bestAvg)
	}

	if len(report.BestHours) > 0 {
		b := report.BestHours[0]
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d:00頃の利用がおすすめです（平均%d人）", b.Hour, b.Avg))
	}
	if len(report.BusyHours) > 0 {
		b := report.BusyHours[0]
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d:00頃は混雑するため避けましょう（平均%d人）", b.Hour, b.Avg))
	}
	if report.QuietestWeekday != "" {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%sが一番空いています（平均%d人）", WeekdayLabel(report.QuietestWeekday), report.QuietestAvg))
	}

	return report
}
