package capture

import "errors"

// Authorization errors.
var (
	ErrNotAuthorized = errors.New("camera access not authorized")
	ErrRestricted    = errors.New("camera access restricted")
	ErrNotSupported  = errors.New("not supported by this hardware")
)

// Setup errors.
var (
	ErrSetupFailed        = errors.New("capture session setup failed")
	ErrWrongConfiguration = errors.New("output mode does not include this output")
	ErrImageCaptureFailed = errors.New("image capture failed")
	ErrDeviceNotFound     = errors.New("no capture device found")
)

// Runtime errors.
var (
	ErrNotRunning       = errors.New("capture session is not running")
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrClosed           = errors.New("controller closed")
)

// ErrorKind groups errors the way callers usually react to them.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAuthorization
	KindSetup
	KindRuntime
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthorization:
		return "authorization"
	case KindSetup:
		return "setup"
	case KindRuntime:
		return "runtime"
	}
	return "unknown"
}

// KindOf reports the kind of err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrRestricted), errors.Is(err, ErrNotSupported):
		return KindAuthorization
	case errors.Is(err, ErrSetupFailed), errors.Is(err, ErrWrongConfiguration),
		errors.Is(err, ErrImageCaptureFailed), errors.Is(err, ErrDeviceNotFound):
		return KindSetup
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrAlreadyRecording),
		errors.Is(err, ErrNotRecording), errors.Is(err, ErrClosed):
		return KindRuntime
	}
	return KindUnknown
}
