package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	readChunkSize = 4096
	maxFrameSize  = 10 * 1024 * 1024
	staleAfter    = 5 * time.Second
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}

	errNoFrame    = errors.New("no frame available yet")
	errStaleFrame = errors.New("frame is stale")
)

// frameBuffer holds the most recent complete JPEG of one stream.
type frameBuffer struct {
	mu     sync.RWMutex
	frame  []byte
	at     time.Time
	maxAge time.Duration

	ready     chan struct{}
	readyOnce sync.Once
}

func newFrameBuffer(maxAge time.Duration) *frameBuffer {
	return &frameBuffer{maxAge: maxAge, ready: make(chan struct{})}
}

func (b *frameBuffer) store(frame []byte) {
	b.mu.Lock()
	b.frame = bytes.Clone(frame)
	b.at = time.Now()
	b.mu.Unlock()
	b.readyOnce.Do(func() { close(b.ready) })
}

// LatestFrame returns a copy of the newest frame. Frames older than maxAge
// are reported stale, which catches a producer that died silently.
func (b *frameBuffer) LatestFrame() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.frame) == 0 {
		return nil, errNoFrame
	}
	if b.maxAge > 0 && time.Since(b.at) > b.maxAge {
		return nil, errStaleFrame
	}
	return bytes.Clone(b.frame), nil
}

// waitReady blocks until the first frame arrives.
func (b *frameBuffer) waitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pumpFrames reads an MJPEG byte stream from r and passes every complete
// JPEG (SOI through EOI) to store. It returns nil at EOF.
func pumpFrames(r io.Reader, store func([]byte), logger *slog.Logger) error {
	buf := make([]byte, readChunkSize)
	var pending []byte
	// bytes of pending already searched for EOI
	scanned := 0

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				start := bytes.Index(pending, soi)
				if start < 0 {
					// Keep a trailing 0xFF; it may be half of the next SOI.
					if last := len(pending) - 1; last >= 0 && pending[last] == 0xFF {
						pending = append(pending[:0], 0xFF)
					} else {
						pending = pending[:0]
					}
					scanned = 0
					break
				}
				if start > 0 {
					pending = append(pending[:0], pending[start:]...)
					scanned = 0
				}
				from := max(scanned, len(soi))
				end := bytes.Index(pending[from:], eoi)
				if end < 0 {
					scanned = max(len(pending)-1, len(soi))
					break
				}
				end += from + len(eoi)
				store(pending[:end])
				pending = append(pending[:0], pending[end:]...)
				scanned = 0
			}
			if len(pending) > maxFrameSize {
				logger.Warn("Frame buffer overflow, resetting")
				pending = nil
				scanned = 0
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
