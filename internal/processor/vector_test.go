package processor

import (
	"context"
	"errors"
	"testing"
)

func TestExtractSVGText(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg">
  <text x="1" y="2">混雑状況</text>
  <text x="1" y="3"><tspan font-weight="bold">22</tspan>人</text>
  <text>A &amp; B &lt;ok&gt;</text>
  <text>   </text>
  <text>multi
    line</text>
</svg>`

	got := ExtractSVGText(svg)
	want := "混雑状況 22人 A & B <ok> multi line"
	if got != want {
		t.Errorf("ExtractSVGText = %q, want %q", got, want)
	}
}

func TestExtractSVGTextDecodesOnlyMarkupEntities(t *testing.T) {
	svg := `<svg><text>&#20154; &quot;x&quot; &amp;lt; 5&gt;3</text></svg>`

	got := ExtractSVGText(svg)
	want := "&#20154; &quot;x&quot; &lt; 5>3"
	if got != want {
		t.Errorf("ExtractSVGText = %q, want %q", got, want)
	}
}

func TestVectorBackend(t *testing.T) {
	dir := t.TempDir()
	ok := writeTextFile(t, dir, "ok.svg", svgWithTexts("混雑状況", "22人"))
	empty := writeTextFile(t, dir, "empty.svg", `<svg><rect width="1" height="1"/></svg>`)

	var b VectorBackend
	text, err := b.Extract(context.Background(), ok)
	if err != nil || text != "混雑状況 22人" {
		t.Errorf("Extract(ok) = %q, %v", text, err)
	}

	if _, err := b.Extract(context.Background(), empty); !errors.Is(err, ErrNoVectorText) {
		t.Errorf("Extract(empty) error = %v, want ErrNoVectorText", err)
	}

	if _, err := b.Extract(context.Background(), dir+"/missing.svg"); err == nil {
		t.Errorf("expected error for missing file")
	}
}
