package processor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ErrIncompleteText means the text lacked a count, a status or a time
var ErrIncompleteText = errors.New("incomplete occupancy text")

// IncompleteTextError names the fields that could not be extracted
type IncompleteTextError struct {
	Missing []string
}

func (e *IncompleteTextError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrIncompleteText, strings.Join(e.Missing, ", "))
}

func (e *IncompleteTextError) Unwrap() error { return ErrIncompleteText }

// StatusBand maps crowd phrases to a status code and the headcount range it implies
type StatusBand struct {
	Phrases []string
	Label   string
	Code    int
	Min     int
	Max     int
}

// statusLadder is checked top to bottom; more specific phrases come first
// so that e.g. やや空い is never read as 空い.
var statusLadder = []StatusBand{
	{Phrases: []string{"非常に混ん"}, Label: "非常に混んでいます（41人~）", Code: 1, Min: 41, Max: 60},
	{Phrases: []string{"やや空い"}, Label: "やや空いています（~20人）", Code: 4, Min: 11, Max: 20},
	{Phrases: []string{"やや混ん"}, Label: "少し混んでいます（~30人）", Code: 3, Min: 21, Max: 30},
	{Phrases: []string{"空い"}, Label: "空いています（~10人）", Code: 5, Min: 0, Max: 10},
	{Phrases: []string{"混ん", "混雑して"}, Label: "混んでいます（~40人）", Code: 2, Min: 31, Max: 40},
}

// StatusLadder returns a copy of the ordered status table
func StatusLadder() []StatusBand {
	out := make([]StatusBand, len(statusLadder))
	copy(out, statusLadder)
	return out
}

// MatchStatus returns the first band whose phrase occurs in text
func MatchStatus(text string) (StatusBand, bool) {
	for _, band := range statusLadder {
		for _, p := range band.Phrases {
			if strings.Contains(text, p) {
				return band, true
			}
		}
	}
	return StatusBand{}, false
}

const (
	minCount = 1
	maxCount = 60
)

var (
	countPattern     = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*人`)
	clockPattern     = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	kanjiTimePattern = regexp.MustCompile(`(\d{1,2})時(\d{2})分`)
	filenameDate     = regexp.MustCompile(`(\d{4})[_:\-]?(\d{2})[_:\-]?(\d{2})`)
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	filenameHourPats = []*regexp.Regexp{
		regexp.MustCompile(`_(\d{2})(\d{2})(\d{2})?\.`),
		regexp.MustCompile(`(\d{2}):(\d{2})\.`),
	}
)

// FieldExtractor turns OCR text into an ExtractedRecord
type FieldExtractor struct {
	now func() time.Time
}

// NewFieldExtractor creates an extractor using the wall clock for undated files
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{now: time.Now}
}

// Extract parses count, status and time from text and the date from filename.
// Full-width digits and colons are folded to ASCII first.
func (e *FieldExtractor) Extract(text, filename string) (*ExtractedRecord, error) {
	folded := NormalizeText(text)

	var missing []string

	count, ok := parseCount(folded)
	if !ok {
		missing = append(missing, "count")
	}

	band, ok := MatchStatus(folded)
	if !ok {
		missing = append(missing, "status")
	}

	hour, minute, ok := parseTime(folded)
	if !ok {
		missing = append(missing, "time")
	}

	if len(missing) > 0 {
		return nil, &IncompleteTextError{Missing: missing}
	}

	return &ExtractedRecord{
		Filename:    filename,
		Count:       count,
		StatusLabel: band.Label,
		StatusCode:  band.Code,
		StatusMin:   band.Min,
		StatusMax:   band.Max,
		Hour:        hour,
		Minute:      minute,
		Time:        fmt.Sprintf("%02d:%s", hour, minute),
		Date:        e.DateFromFilename(filename),
		RawText:     text,
	}, nil
}

// NormalizeText folds full-width digits, colons and latin letters to ASCII
func NormalizeText(text string) string {
	return width.Fold.String(text)
}

func parseCount(text string) (int, bool) {
	m := countPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < minCount || n > maxCount {
		return 0, false
	}
	return n, true
}

func parseTime(text string) (int, string, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		m = kanjiTimePattern.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return 0, "", false
	}
	if minute, _ := strconv.Atoi(m[2]); minute > 59 {
		return 0, "", false
	}
	return hour, m[2], true
}

// DateFromFilename returns YYYY-MM-DD from names like FP24_20250915_1040.png,
// or today's date when the name carries no valid date.
func (e *FieldExtractor) DateFromFilename(filename string) string {
	if m := filenameDate.FindStringSubmatch(filename); m != nil {
		date := m[1] + "-" + m[2] + "-" + m[3]
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date
		}
	}
	return e.now().Format("2006-01-02")
}

// HourFromFilename reads the capture time from _HHMM., _HHMMSS. or HH:MM. in a filename
func HourFromFilename(filename string) (hour int, minute string, ok bool) {
	for _, p := range filenameHourPats {
		m := p.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		h, err := strconv.Atoi(m[1])
		if err != nil || h > 23 {
			continue
		}
		if mm, _ := strconv.Atoi(m[2]); mm > 59 {
			continue
		}
		return h, m[2], true
	}
	return 0, "", false
}

// Consistency scores how well a record agrees with itself and its filename (0-1)
func Consistency(rec *ExtractedRecord, filename string) float64 {
	if rec == nil {
		return 0
	}

	c := 0.0
	if rec.StatusCode != 0 && rec.Count >= rec.StatusMin && rec.Count <= rec.StatusMax {
		c += 0.5
	}
	if h, _, ok := HourFromFilename(filename); ok && h == rec.Hour {
		c += 0.3
	}
	if isoDatePattern.MatchString(rec.Date) {
		c += 0.2
	}
	return clampFloat(c, 0, 1)
}
