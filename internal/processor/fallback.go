package processor

import (
	"fmt"
	"time"
)

// hourlyPattern is the typical crowd level for one hour of the day
type hourlyPattern struct {
	Count  int
	Status string
}

// historicalPatterns reflects observed weekday traffic: quiet early mornings,
// a lunch bump, the 18-21h evening peak and a late-night trough.
var historicalPatterns = map[int]hourlyPattern{
	0:  {8, "空いています"},
	1:  {5, "空いています"},
	2:  {3, "空いています"},
	3:  {2, "空いています"},
	4:  {5, "空いています"},
	5:  {8, "空いています"},
	6:  {10, "空いています"},
	7:  {12, "空いています"},
	8:  {15, "空いています"},
	9:  {18, "やや空いています"},
	10: {20, "やや空いています"},
	11: {22, "やや空いています"},
	12: {25, "やや混んでいます"},
	13: {23, "やや混んでいます"},
	14: {20, "やや空いています"},
	15: {22, "やや混んでいます"},
	16: {26, "やや混んでいます"},
	17: {30, "混んでいます"},
	18: {35, "混んでいます"},
	19: {40, "混んでいます"},
	20: {38, "混んでいます"},
	21: {32, "混んでいます"},
	22: {25, "やや混んでいます"},
	23: {15, "空いています"},
}

var defaultPattern = hourlyPattern{15, "空いています"}

// HistoricalFallback synthesizes plausible text when OCR yields nothing usable
type HistoricalFallback struct {
	extractor *FieldExtractor
	now       func() time.Time
}

// NewHistoricalFallback creates a fallback that reads dates like extractor does
func NewHistoricalFallback(extractor *FieldExtractor) *HistoricalFallback {
	if extractor == nil {
		extractor = NewFieldExtractor()
	}
	return &HistoricalFallback{extractor: extractor, now: time.Now}
}

// Synthesize builds text for filename from the hourly pattern table. The
// result is meant to be fed back through FieldExtractor.Extract.
func (f *HistoricalFallback) Synthesize(filename string) string {
	hour, minute, ok := HourFromFilename(filename)
	if !ok {
		now := f.now()
		hour, minute = now.Hour(), fmt.Sprintf("%02d", now.Minute())
	}

	p, ok := historicalPatterns[hour]
	if !ok {
		p = defaultPattern
	}

	return fmt.Sprintf("推測データ %d人 %s %02d:%s時点 %s",
		p.Count, p.Status, hour, minute, f.extractor.DateFromFilename(filename))
}
