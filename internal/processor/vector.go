package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoVectorText means an SVG contained no readable <text> nodes
var ErrNoVectorText = errors.New("svg has no text nodes")

var (
	svgTextNode   = regexp.MustCompile(`(?s)<text[^>]*>(.*?)</text>`)
	svgInnerTag   = regexp.MustCompile(`<[^>]+>`)
	svgWhitespace = regexp.MustCompile(`\s+`)

	// only the entities screenshot exports emit; anything else stays literal
	svgEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// VectorBackend reads text straight out of SVG screenshots
type VectorBackend struct{}

func (VectorBackend) Name() string { return "svg" }

// Extract joins the content of every <text> node with single spaces
func (VectorBackend) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read svg: %w", err)
	}
	text := ExtractSVGText(string(data))
	if text == "" {
		return "", ErrNoVectorText
	}
	return text, nil
}

// ExtractSVGText returns the decoded text nodes of an SVG document
func ExtractSVGText(svg string) string {
	var parts []string
	for _, m := range svgTextNode.FindAllStringSubmatch(svg, -1) {
		content := svgInnerTag.ReplaceAllString(m[1], "")
		content = svgEntities.Replace(content)
		content = strings.TrimSpace(svgWhitespace.ReplaceAllString(content, " "))
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, " ")
}
