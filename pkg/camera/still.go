package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/wachiwi/capturekit/pkg/capture"
)

// darkLuma is the mean 16-bit luminance below which auto flash fires.
const darkLuma = 0x3000

// StillOutput takes photos from the session's preview stream.
type StillOutput struct {
	session *Session

	mu    sync.Mutex
	codec string
}

func (o *StillOutput) Kind() string { return "still" }

// SetCodec accepts JPEG only; frames are already JPEG encoded.
func (o *StillOutput) SetCodec(codec string) error {
	if codec != capture.CodecJPEG {
		return fmt.Errorf("%q: %w", codec, ErrUnsupportedCodec)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codec = codec
	return nil
}

func (o *StillOutput) Codec() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codec
}

// Capture returns the current frame. When the flash fires the frame is taken
// after the configured pulse so the exposure has settled.
func (o *StillOutput) Capture(ctx context.Context, mode capture.FlashMode) ([]byte, error) {
	frame, err := o.session.LatestFrame()
	if err != nil {
		return nil, err
	}
	dev := o.session.VideoDevice()
	if dev == nil {
		return frame, nil
	}
	flash, _ := dev.currentFlash()
	if flash == nil || !shouldFire(mode, frame) {
		return frame, nil
	}

	if err := flash.On(); err != nil {
		o.session.logger.Warn("Flash failed", "error", err)
		return frame, nil
	}
	defer func() {
		if err := flash.Off(); err != nil {
			o.session.logger.Warn("Flash did not turn off", "error", err)
		}
	}()
	select {
	case <-time.After(o.session.cfg.FlashPulse):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.session.LatestFrame()
}

func shouldFire(mode capture.FlashMode, frame []byte) bool {
	switch mode {
	case capture.FlashOn:
		return true
	case capture.FlashAuto:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		return err == nil && meanLuma(img) < darkLuma
	}
	return false
}

// meanLuma samples a 16x16 grid.
func meanLuma(img image.Image) uint32 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	const grid = 16
	var sum, n uint64
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := b.Min.X + gx*b.Dx()/grid
			y := b.Min.Y + gy*b.Dy()/grid
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += (299*uint64(r) + 587*uint64(g) + 114*uint64(bl)) / 1000
			n++
		}
	}
	return uint32(sum / n)
}
