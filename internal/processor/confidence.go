package processor

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// textRule adds weight to a score when its predicate holds
type textRule struct {
	name   string
	weight float64
	match  func(text string) bool
}

var (
	attemptCountPattern  = regexp.MustCompile(`\d{1,2}人`)
	attemptTimePattern   = regexp.MustCompile(`\d{1,2}:\d{2}`)
	attemptStatusPattern = regexp.MustCompile(`空い|混ん|やや`)
	recordCountPattern   = regexp.MustCompile(`\d+人`)
)

func contains(sub ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range sub {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

// attemptRules are summed on top of the quality bonus (max 70 points)
var attemptRules = []textRule{
	{"has_text", 10, func(t string) bool { return utf8.RuneCountInString(t) > 5 }},
	{"has_person_marker", 15, contains("人")},
	{"has_status_word", 15, contains("混雑", "空い")},
	{"count_pattern", 10, attemptCountPattern.MatchString},
	{"time_pattern", 10, attemptTimePattern.MatchString},
	{"status_pattern", 10, attemptStatusPattern.MatchString},
}

// ScoreAttempt rates raw OCR text on the 0-100 scale. Quality contributes up
// to 30 points, so the score never decreases as quality rises.
func ScoreAttempt(text string, quality QualityAssessment) AttemptScore {
	score := float64(quality.Score) / 100 * 30
	for _, r := range attemptRules {
		if r.match(text) {
			score += r.weight
		}
	}

	s := Score(clampInt(int(math.Round(score)), 0, 100))
	return AttemptScore{Score: s, Level: levelFor(s)}
}

func levelFor(s Score) Level {
	switch {
	case s >= 85:
		return LevelVeryHigh
	case s >= 70:
		return LevelHigh
	case s >= 55:
		return LevelMedium
	case s >= 40:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// recordRule checks an extracted record together with its source text
type recordRule struct {
	name   string
	weight float64
	match  func(rec *ExtractedRecord, text string) bool
}

var recordRules = []recordRule{
	{"count_plausible", 0.2, func(r *ExtractedRecord, _ string) bool { return r.Count >= 1 && r.Count <= 60 }},
	{"status_present", 0.15, func(r *ExtractedRecord, _ string) bool { return r.StatusLabel != "" }},
	{"hour_plausible", 0.15, func(r *ExtractedRecord, _ string) bool { return r.Hour >= 0 && r.Hour <= 23 }},
	{"text_length", 0.1, func(_ *ExtractedRecord, t string) bool { return utf8.RuneCountInString(t) > 10 }},
	{"app_keyword", 0.1, func(_ *ExtractedRecord, t string) bool { return contains("My Gym", "混雑状況")(t) }},
	{"count_pattern", 0.1, func(_ *ExtractedRecord, t string) bool { return recordCountPattern.MatchString(t) }},
}

const (
	consistencyWeight = 0.2
	fallbackPenalty   = 0.1
)

// ScoreRecord rates an extracted record on the persisted 0-1 scale.
// Text synthesized by the historical fallback is penalised so it never
// outranks a genuine reading of the same screenshot.
func ScoreRecord(rec *ExtractedRecord, text string, consistency float64, source Source) Confidence {
	if rec == nil {
		return 0
	}

	c := 0.0
	for _, r := range recordRules {
		if r.match(rec, text) {
			c += r.weight
		}
	}
	c += clampFloat(consistency, 0, 1) * consistencyWeight
	if source == SourceFallback {
		c -= fallbackPenalty
	}

	return Confidence(roundConfidence(c))
}

// roundConfidence clamps to [0,1] and rounds to 4 decimal places
func roundConfidence(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	c = clampFloat(c, 0, 1)
	return math.Round(c*10000) / 10000
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
