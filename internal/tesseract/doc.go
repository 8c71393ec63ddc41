// Package tesseract runs Tesseract in-process through gosseract.
//
// It is the OCR_ENGINE=tesseract alternative to the subprocess backend in
// package processor. Both satisfy processor.Backend, so the invoker's retry
// loop, scoring and fallback behave the same whichever engine is configured.
//
// gosseract links against libtesseract and therefore needs cgo. Builds
// without cgo get a stub whose constructor returns ErrUnavailable.
//
// Language data for every configured language (jpn and eng by default)
// must be installed where libtesseract can find it.
package tesseract

import "errors"

// ErrUnavailable is returned when the binary was built without cgo
var ErrUnavailable = errors.New("tesseract engine requires a cgo build")
