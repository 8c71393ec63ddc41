package processor

import (
	"os"
	"path/filepath"
	"strings"
)

// AssessImageQuality estimates screenshot readability from file size, format
// and filename. It never fails: an unreadable file gets a neutral score.
func AssessImageQuality(path string) QualityAssessment {
	info, err := os.Stat(path)
	if err != nil {
		return QualityAssessment{Score: 50, Assessment: "unknown", SizeKB: 0, Format: "UNKNOWN"}
	}

	score := 50
	assessment := ""
	sizeKB := float64(info.Size()) / 1024

	switch {
	case sizeKB > 500:
		score += 20
		assessment = "high_resolution"
	case sizeKB > 100:
		score += 10
		assessment = "medium_resolution"
	default:
		score -= 10
		assessment = "low_resolution"
	}

	ext := strings.ToLower(filepath.Ext(path))
	format := strings.ToUpper(strings.TrimPrefix(ext, "."))
	switch ext {
	case ".svg":
		score += 25
		assessment = "optimal"
	case ".png", ".bmp":
		score += 15
	case ".jpg", ".jpeg", ".webp":
		score += 10
	}

	name := filepath.Base(path)
	if strings.Contains(name, "FP24") || strings.Contains(name, "fit_place") {
		score += 10
	}

	return QualityAssessment{
		Score:      clampInt(score, 0, 100),
		Assessment: assessment,
		SizeKB:     sizeKB,
		Format:     format,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
