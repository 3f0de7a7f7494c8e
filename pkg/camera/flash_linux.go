//go:build linux

package camera

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Flash drives an LED on a GPIO line.
type Flash struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenFlash requests line on chip as an output, initially off.
func OpenFlash(chipName string, line int) (*Flash, error) {
	c, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open chip: %w", err)
	}
	l, err := c.RequestLine(line, gpiocdev.AsOutput(0))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to request line %d: %w", line, err)
	}
	return &Flash{chip: c, line: l}, nil
}

func (f *Flash) On() error  { return f.set(1) }
func (f *Flash) Off() error { return f.set(0) }

func (f *Flash) set(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line.SetValue(v)
}

func (f *Flash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.line.SetValue(0)
	if err := f.line.Close(); err != nil {
		return err
	}
	return f.chip.Close()
}
