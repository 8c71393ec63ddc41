package processor

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func createTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "FP24_20250915_1040.png")
	img := imaging.New(w, h, color.NRGBA{R: 240, G: 120, B: 30, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save test image: %v", err)
	}
	return path
}

func TestPreprocessImageUpscalesSmallCaptures(t *testing.T) {
	src := createTestPNG(t, 200, 100)

	out, cleanup, err := PreprocessImage(src)
	if err != nil {
		t.Fatalf("PreprocessImage: %v", err)
	}

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if got := img.Bounds().Dy(); got != minOCRHeight*3/2 {
		t.Errorf("height = %d, want %d", got, minOCRHeight*3/2)
	}
	if got := img.Bounds().Dx(); got != 2*minOCRHeight*3/2 {
		t.Errorf("width = %d, aspect ratio not kept", got)
	}

	cleanup()
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("cleanup should remove %s", out)
	}
}

func TestPreprocessImageKeepsLargeCaptures(t *testing.T) {
	src := createTestPNG(t, 400, 1000)

	out, cleanup, err := PreprocessImage(src)
	if err != nil {
		t.Fatalf("PreprocessImage: %v", err)
	}
	defer cleanup()

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if img.Bounds().Dy() != 1000 || img.Bounds().Dx() != 400 {
		t.Errorf("size = %v, want unchanged 400x1000", img.Bounds().Size())
	}
}

func TestPreprocessImageRejectsNonImage(t *testing.T) {
	path := writeTextFile(t, t.TempDir(), "fake.png", "not an image")
	if _, _, err := PreprocessImage(path); err == nil {
		t.Fatalf("expected error for non-image input")
	}
}
