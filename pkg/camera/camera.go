// Package camera is the host backend for pkg/capture. Cameras are driven as
// external processes (ffmpeg, rpicam-vid or libcamera-vid) streaming MJPEG on
// stdout; a generated placeholder camera is available everywhere for
// development and tests.
package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wachiwi/capturekit/pkg/capture"
)

var (
	ErrDeviceBusy         = errors.New("device is locked for configuration")
	ErrMaxDurationReached = errors.New("maximum recording duration reached")
	ErrInsufficientSpace  = errors.New("insufficient free disk space")
	ErrUnsupportedCodec   = errors.New("unsupported codec")
	errNoStream           = errors.New("no stream running")
	errForeignDevice      = errors.New("device does not belong to this host")
)

// PlaceholderID is the device ID of the generated camera.
const PlaceholderID = "placeholder"

// Config holds backend configuration.
type Config struct {
	// Width, Height and FPS apply to the high quality preset.
	Width  int
	Height int
	FPS    int

	FFmpegPath string
	// Placeholder adds a camera producing generated frames.
	Placeholder bool
	// Fallback switches to generated frames when a camera process fails to
	// start.
	Fallback bool
	// Libcamera adds the Raspberry Pi camera when rpicam-vid or
	// libcamera-vid is installed.
	Libcamera bool
	// Positions maps device IDs to mounting positions. Unmapped cameras get
	// back, then front, in discovery order.
	Positions map[string]capture.Position

	FlashChip   string
	FlashLine   int
	FlashDevice string
	FlashPulse  time.Duration

	StartTimeout time.Duration
	DiscoveryTTL time.Duration

	DevRoot  string
	SysRoot  string
	ProcRoot string
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FlashPulse == 0 {
		c.FlashPulse = 200 * time.Millisecond
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = 10 * time.Second
	}
	if c.DiscoveryTTL == 0 {
		c.DiscoveryTTL = 5 * time.Second
	}
	if c.DevRoot == "" {
		c.DevRoot = "/dev"
	}
	if c.SysRoot == "" {
		c.SysRoot = "/sys"
	}
	if c.ProcRoot == "" {
		c.ProcRoot = "/proc"
	}
	return c
}

// Host implements capture.PermissionHost and capture.DeviceHost.
type Host struct {
	cfg    Config
	logger *slog.Logger
	flash  *Flash

	mu    sync.Mutex
	known map[string]*Device
	cache map[capture.MediaType]cachedDiscovery
	// permission decisions from platforms that prompt
	decided map[capture.MediaType]capture.AuthorizationStatus
}

type cachedDiscovery struct {
	infos []deviceInfo
	at    time.Time
}

// NewHost builds a host. It opens the flash GPIO line when one is configured.
func NewHost(cfg Config, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &Host{
		cfg:     cfg,
		logger:  logger.With("component", "camera"),
		known:   make(map[string]*Device),
		cache:   make(map[capture.MediaType]cachedDiscovery),
		decided: make(map[capture.MediaType]capture.AuthorizationStatus),
	}
	if cfg.FlashChip != "" {
		f, err := OpenFlash(cfg.FlashChip, cfg.FlashLine)
		if err != nil {
			return nil, fmt.Errorf("failed to open flash: %w", err)
		}
		h.flash = f
		h.logger.Info("Flash ready", "chip", cfg.FlashChip, "line", cfg.FlashLine)
	}
	return h, nil
}

// Close releases the flash line.
func (h *Host) Close() error {
	if h.flash != nil {
		return h.flash.Close()
	}
	return nil
}

// NewSession returns an idle capture session on this host.
func (h *Host) NewSession() *Session {
	return newSession(h)
}

// Devices lists devices of one media type. Results are rebuilt on every
// call; Device values are reused for IDs seen before so their lock and flash
// state survive.
func (h *Host) Devices(media capture.MediaType) ([]capture.Device, error) {
	infos, err := h.discoverCached(media)
	if err != nil {
		return nil, err
	}
	if media == capture.MediaVideo && h.cfg.Placeholder {
		infos = append(infos, deviceInfo{
			id:    PlaceholderID,
			name:  "Placeholder camera",
			media: capture.MediaVideo,
			kind:  sourcePlaceholder,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	positions := assignPositions(infos, h.cfg.Positions)
	flashID := h.flashDevice(infos, positions)

	devices := make([]capture.Device, 0, len(infos))
	for i, info := range infos {
		d, ok := h.known[info.id]
		if !ok {
			d = &Device{}
			h.known[info.id] = d
		}
		d.update(info, positions[i])
		if info.id == flashID {
			d.flash = h.flash
		} else {
			d.flash = nil
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (h *Host) flashDevice(infos []deviceInfo, positions []capture.Position) string {
	if h.flash == nil {
		return ""
	}
	if h.cfg.FlashDevice != "" {
		return h.cfg.FlashDevice
	}
	for i, info := range infos {
		if info.media == capture.MediaVideo && positions[i] == capture.PositionBack {
			return info.id
		}
	}
	return ""
}

// assignPositions applies configured positions, then gives unmapped cameras
// back and front in order.
func assignPositions(infos []deviceInfo, configured map[string]capture.Position) []capture.Position {
	positions := make([]capture.Position, len(infos))
	taken := make(map[capture.Position]bool)
	for i, info := range infos {
		if p, ok := configured[info.id]; ok {
			positions[i] = p
			taken[p] = true
		}
	}
	free := slices.DeleteFunc([]capture.Position{capture.PositionBack, capture.PositionFront},
		func(p capture.Position) bool { return taken[p] })
	for i, info := range infos {
		if info.media != capture.MediaVideo {
			continue
		}
		if _, ok := configured[info.id]; ok || len(free) == 0 {
			continue
		}
		positions[i] = free[0]
		free = free[1:]
	}
	return positions
}

func (h *Host) discoverCached(media capture.MediaType) ([]deviceInfo, error) {
	h.mu.Lock()
	c, ok := h.cache[media]
	h.mu.Unlock()
	if ok && time.Since(c.at) < h.cfg.DiscoveryTTL && discoveryCacheable {
		return slices.Clone(c.infos), nil
	}
	infos, err := h.discover(media)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.cache[media] = cachedDiscovery{infos: infos, at: time.Now()}
	h.mu.Unlock()
	return slices.Clone(infos), nil
}

// invalidate drops cached discovery results.
func (h *Host) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.cache)
}

// generatePlaceholderFrame creates a gradient frame whose red channel cycles
// with the clock.
func generatePlaceholderFrame(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	shade := byte(time.Now().UnixMilli() / 100 % 256)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := y*img.Stride + x*4
			img.Pix[offset] = shade
			img.Pix[offset+1] = byte((x * 255) / width)
			img.Pix[offset+2] = byte((y * 255) / height)
			img.Pix[offset+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
