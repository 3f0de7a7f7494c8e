package camera

import (
	"fmt"
	"strings"
	"sync"

	"github.com/wachiwi/capturekit/pkg/capture"
)

type sourceKind int

const (
	sourcePlaceholder sourceKind = iota
	sourceV4L2
	sourceLibcamera
	sourceAVFoundation
	sourceALSA
)

// deviceInfo is one discovery result.
type deviceInfo struct {
	id    string
	name  string
	media capture.MediaType
	kind  sourceKind
	// device node, avfoundation index or ALSA hw name
	path string
}

// Device implements capture.Device.
type Device struct {
	mu        sync.Mutex
	info      deviceInfo
	pos       capture.Position
	flash     *Flash
	locked    bool
	flashMode capture.FlashMode
}

func (d *Device) update(info deviceInfo, pos capture.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info
	d.pos = pos
}

func (d *Device) snapshot() deviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

func (d *Device) ID() string                   { return d.snapshot().id }
func (d *Device) Name() string                 { return d.snapshot().name }
func (d *Device) MediaType() capture.MediaType { return d.snapshot().media }

func (d *Device) Position() capture.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *Device) HasFlash() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash != nil
}

// SupportsFlashMode is true for every mode when the device has a flash.
func (d *Device) SupportsFlashMode(mode capture.FlashMode) bool {
	return d.HasFlash()
}

func (d *Device) LockForConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return fmt.Errorf("%s: %w", d.info.id, ErrDeviceBusy)
	}
	d.locked = true
	return nil
}

func (d *Device) UnlockForConfiguration() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = false
}

// SetFlashMode only takes effect while the device is locked.
func (d *Device) SetFlashMode(mode capture.FlashMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.locked {
		return
	}
	d.flashMode = mode
}

func (d *Device) currentFlash() (*Flash, capture.FlashMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash, d.flashMode
}

// videoStream builds the stream for a camera at the given resolution.
func (d *Device) videoStream(cfg Config, res resolution, h *Host) stream {
	info := d.snapshot()
	switch info.kind {
	case sourceV4L2:
		return newProcessStream(cfg.FFmpegPath, v4l2Args(info.path, res, cfg.FPS), h.logger)
	case sourceLibcamera:
		name, err := rpicamCommand()
		if err != nil {
			return &failedStream{err: err}
		}
		return newProcessStream(name, rpicamArgs(res, cfg.FPS), h.logger)
	case sourceAVFoundation:
		return newProcessStream(cfg.FFmpegPath, avfoundationArgs(info.path, res), h.logger)
	}
	return newPlaceholderStream(res, cfg.FPS)
}

// audioInputArgs returns the ffmpeg input options recording from a
// microphone.
func (d *Device) audioInputArgs() []string {
	info := d.snapshot()
	switch info.kind {
	case sourceALSA:
		return []string{"-f", "alsa", "-i", info.path}
	case sourceAVFoundation:
		return []string{"-f", "avfoundation", "-i", ":" + info.path}
	}
	return nil
}

func v4l2Args(node string, res resolution, fps int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-framerate", fmt.Sprint(fps),
		"-video_size", res.String(),
		"-i", node,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	}
}

// avfoundationArgs captures one macOS camera. Most built-in cameras only
// accept 30 fps.
func avfoundationArgs(index string, res resolution) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "avfoundation",
		"-framerate", "30",
		"-video_size", res.String(),
		"-i", index,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	}
}

// resolution is a capture size.
type resolution struct {
	width, height int
}

func (r resolution) String() string { return fmt.Sprintf("%dx%d", r.width, r.height) }

// presetResolution maps a quality preset to a capture size. High uses the
// configured size.
func presetResolution(q capture.Quality, cfg Config) resolution {
	switch q {
	case capture.QualityMedium:
		return resolution{640, 480}
	case capture.QualityLow:
		return resolution{320, 240}
	case capture.QualityPhoto:
		return resolution{1920, 1080}
	}
	return resolution{cfg.Width, cfg.Height}
}

func isCaptureNode(name string) bool {
	return strings.HasPrefix(name, "video") || (strings.HasPrefix(name, "pcmC") && strings.HasSuffix(name, "c"))
}
