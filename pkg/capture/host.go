package capture

import (
	"context"
	"time"
)

// The interfaces in this file describe the platform capture framework the
// controller drives. pkg/camera implements them on top of ffmpeg and
// rpicam; tests use in-memory fakes.

// PermissionHost is the platform permission API.
type PermissionHost interface {
	AuthorizationStatus(media MediaType) AuthorizationStatus
	// RequestAccess may block while the user answers a prompt.
	RequestAccess(ctx context.Context, media MediaType) (bool, error)
}

// DeviceHost enumerates physical devices.
type DeviceHost interface {
	Devices(media MediaType) ([]Device, error)
}

// Device is a camera or microphone.
type Device interface {
	ID() string
	Name() string
	MediaType() MediaType
	Position() Position
	HasFlash() bool
	SupportsFlashMode(mode FlashMode) bool
	// LockForConfiguration must be paired with UnlockForConfiguration.
	LockForConfiguration() error
	UnlockForConfiguration()
	// SetFlashMode requires the configuration lock.
	SetFlashMode(mode FlashMode)
}

// Input is a device attached (or attachable) to a session.
type Input interface {
	Device() Device
}

// Output is anything a session can deliver media to.
type Output interface {
	Kind() string
}

// StillImageOutput captures single photos.
type StillImageOutput interface {
	Output
	SetCodec(codec string) error
	Codec() string
	// Capture returns encoded image data.
	Capture(ctx context.Context, flash FlashMode) ([]byte, error)
}

// MovieOutput records movie files.
type MovieOutput interface {
	Output
	SetMaxDuration(d time.Duration)
	SetMinFreeDiskSpace(bytes int64)
	IsRecording() bool
	// StartRecording returns once recording is under way. finished is called
	// exactly once, from any goroutine, when the file is complete.
	StartRecording(path string, finished func(path string, err error)) error
	StopRecording()
}

// FrameSource delivers preview frames.
type FrameSource interface {
	LatestFrame() ([]byte, error)
}

// PreviewSurface is where a running session's preview is shown.
type PreviewSurface interface {
	AttachPreview(src FrameSource)
}

// Session is a mutable capture session. Mutations are only valid between
// BeginConfiguration and CommitConfiguration.
type Session interface {
	BeginConfiguration()
	CommitConfiguration() error

	NewInput(d Device) (Input, error)
	Inputs() []Input
	CanAddInput(in Input) bool
	AddInput(in Input)
	RemoveInput(in Input)

	NewStillImageOutput() StillImageOutput
	NewMovieOutput() MovieOutput
	Outputs() []Output
	CanAddOutput(out Output) bool
	AddOutput(out Output)

	CanSetPreset(q Quality) bool
	SetPreset(q Quality)

	// Start blocks until the pipeline is running.
	Start() error
	Stop()
	IsRunning() bool
	Preview() FrameSource
}
