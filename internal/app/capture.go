package app

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Capture produces an image snapshot on demand. Stateless; the production
// implementation grabs the primary display.
type Capture interface {
	CapturePNG() ([]byte, error)
}

// ScreenCapture captures the primary display via the OS screenshot API.
type ScreenCapture struct{}

func (ScreenCapture) CapturePNG() ([]byte, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("%w: no active display", ErrCaptureFailed)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrCaptureFailed, err)
	}
	return buf.Bytes(), nil
}
