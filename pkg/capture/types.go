// Package capture drives a camera capture session: permission checks, device
// selection, session configuration, photos and movie recording.
package capture

// SetupState is the lifecycle status of a Controller.
type SetupState int

const (
	StateNotDetermined SetupState = iota
	StateNotAuthorized
	StateConfigurationFailed
	StateRestricted
	StateSuccess
	StateRunning
	StateStopped
)

func (s SetupState) String() string {
	switch s {
	case StateNotDetermined:
		return "not_determined"
	case StateNotAuthorized:
		return "not_authorized"
	case StateConfigurationFailed:
		return "configuration_failed"
	case StateRestricted:
		return "restricted"
	case StateSuccess:
		return "success"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Position is the physical mounting of a camera.
type Position int

const (
	PositionUnspecified Position = iota
	PositionBack
	PositionFront
)

func (p Position) String() string {
	switch p {
	case PositionBack:
		return "back"
	case PositionFront:
		return "front"
	}
	return "unspecified"
}

// ParsePosition accepts the values produced by Position.String.
func ParsePosition(s string) (Position, bool) {
	switch s {
	case "back":
		return PositionBack, true
	case "front":
		return PositionFront, true
	case "unspecified", "":
		return PositionUnspecified, true
	}
	return PositionUnspecified, false
}

// OutputMode selects which outputs a controller creates.
type OutputMode int

const (
	OutputStillImage OutputMode = iota
	OutputVideo
	OutputBoth
)

func (m OutputMode) stills() bool { return m == OutputStillImage || m == OutputBoth }
func (m OutputMode) movies() bool { return m == OutputVideo || m == OutputBoth }

func (m OutputMode) String() string {
	switch m {
	case OutputStillImage:
		return "still"
	case OutputVideo:
		return "video"
	}
	return "both"
}

// ParseOutputMode accepts the values produced by OutputMode.String.
func ParseOutputMode(s string) (OutputMode, bool) {
	switch s {
	case "still":
		return OutputStillImage, true
	case "video":
		return OutputVideo, true
	case "both":
		return OutputBoth, true
	}
	return OutputBoth, false
}

// Quality is the session preset.
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
	QualityPhoto
)

func (q Quality) String() string {
	switch q {
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	case QualityPhoto:
		return "photo"
	}
	return "high"
}

// ParseQuality accepts the values produced by Quality.String.
func ParseQuality(s string) (Quality, bool) {
	switch s {
	case "high":
		return QualityHigh, true
	case "medium":
		return QualityMedium, true
	case "low":
		return QualityLow, true
	case "photo":
		return QualityPhoto, true
	}
	return QualityHigh, false
}

// FlashMode describes flash behaviour for still captures.
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
	FlashAuto
)

func (f FlashMode) String() string {
	switch f {
	case FlashOn:
		return "on"
	case FlashAuto:
		return "auto"
	}
	return "off"
}

// ParseFlashMode accepts the values produced by FlashMode.String.
func ParseFlashMode(s string) (FlashMode, bool) {
	switch s {
	case "off":
		return FlashOff, true
	case "on":
		return FlashOn, true
	case "auto":
		return FlashAuto, true
	}
	return FlashOff, false
}

// MediaType distinguishes camera and microphone devices.
type MediaType int

const (
	MediaVideo MediaType = iota
	MediaAudio
)

func (m MediaType) String() string {
	if m == MediaAudio {
		return "audio"
	}
	return "video"
}

// AuthorizationStatus is the host permission state for one media type.
type AuthorizationStatus int

const (
	AuthNotDetermined AuthorizationStatus = iota
	AuthRestricted
	AuthDenied
	AuthAuthorized
)

func (a AuthorizationStatus) String() string {
	switch a {
	case AuthRestricted:
		return "restricted"
	case AuthDenied:
		return "denied"
	case AuthAuthorized:
		return "authorized"
	}
	return "not_determined"
}
