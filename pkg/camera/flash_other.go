//go:build !linux

package camera

import "errors"

// Flash is only available on linux.
type Flash struct{}

func OpenFlash(chipName string, line int) (*Flash, error) {
	return nil, errors.New("gpio flash not supported on this platform")
}

func (f *Flash) On() error    { return nil }
func (f *Flash) Off() error   { return nil }
func (f *Flash) Close() error { return nil }
