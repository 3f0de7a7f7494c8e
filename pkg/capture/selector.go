package capture

import (
	"fmt"
	"log/slog"
)

// DeviceSelector picks devices by media type and position.
type DeviceSelector interface {
	SupportsCapture() bool
	DevicesForPosition(pos Position) []Device
	Device(media MediaType, preferred Position) (Device, error)
	AvailablePositions(media MediaType) map[Position]bool
}

// Selector is the default DeviceSelector. It asks the host on every call;
// nothing is cached across hardware changes.
type Selector struct {
	host   DeviceHost
	logger *slog.Logger
}

func NewSelector(host DeviceHost, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{host: host, logger: logger.With("component", "selector")}
}

func (s *Selector) devices(media MediaType) []Device {
	devices, err := s.host.Devices(media)
	if err != nil {
		s.logger.Warn("Device enumeration failed", "media", media, "error", err)
		return nil
	}
	return devices
}

// SupportsCapture reports whether any camera is present.
func (s *Selector) SupportsCapture() bool {
	return len(s.devices(MediaVideo)) > 0
}

// DevicesForPosition lists cameras mounted at pos. PositionUnspecified
// lists every camera.
func (s *Selector) DevicesForPosition(pos Position) []Device {
	all := s.devices(MediaVideo)
	if pos == PositionUnspecified {
		return all
	}
	var matched []Device
	for _, d := range all {
		if d.Position() == pos {
			matched = append(matched, d)
		}
	}
	return matched
}

// Device returns a device at the preferred position, or the first device of
// that media type when none is mounted there.
func (s *Selector) Device(media MediaType, preferred Position) (Device, error) {
	all := s.devices(media)
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: %w", media, ErrDeviceNotFound)
	}
	if preferred != PositionUnspecified {
		for _, d := range all {
			if d.Position() == preferred {
				return d, nil
			}
		}
		s.logger.Debug("Preferred position unavailable, using fallback",
			"media", media, "position", preferred, "device", all[0].ID())
	}
	return all[0], nil
}

// AvailablePositions reports which positions have at least one device.
func (s *Selector) AvailablePositions(media MediaType) map[Position]bool {
	positions := make(map[Position]bool)
	for _, d := range s.devices(media) {
		positions[d.Position()] = true
	}
	return positions
}
