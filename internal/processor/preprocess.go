package processor

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
)

// minOCRHeight is the height below which screenshots are upscaled before OCR
const minOCRHeight = 900

// PreprocessImage writes a grayscale, contrast-boosted copy of path to a temp
// PNG and returns its path with a cleanup func. Small captures are upscaled.
func PreprocessImage(path string) (string, func(), error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open image: %w", err)
	}

	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < minOCRHeight {
		gray = imaging.Resize(gray, 0, minOCRHeight*3/2, imaging.Lanczos)
	}

	tmpFile, err := os.CreateTemp("", "crowd-ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()

	cleanup := func() { _ = os.Remove(tmp) }
	if err := imaging.Save(gray, tmp); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to save preprocessed image: %w", err)
	}

	return tmp, cleanup, nil
}
