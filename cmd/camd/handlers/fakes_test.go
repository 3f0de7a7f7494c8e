package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/wachiwi/capturekit/pkg/capture"
)

// fakeController answers synchronously.
type fakeController struct {
	bus *capture.Bus

	mu         sync.Mutex
	state      capture.SetupState
	position   capture.Position
	flash      capture.FlashMode
	quality    capture.Quality
	recording  bool
	connectErr error
	setErr     error
	photo      *capture.Photo
	photoErr   error
	view       capture.PreviewSurface
	frames     capture.FrameSource
}

func newFakeController() *fakeController {
	return &fakeController{
		bus:      capture.NewBus(capture.DispatcherFunc(func(fn func()) { fn() })),
		state:    capture.StateRunning,
		position: capture.PositionBack,
	}
}

func (f *fakeController) SetupState() capture.SetupState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) AuthorizationStatus() capture.AuthorizationStatus {
	return capture.AuthAuthorized
}

func (f *fakeController) CameraPosition() capture.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeController) CaptureQuality() capture.Quality {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quality
}

func (f *fakeController) FlashMode() capture.FlashMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flash
}

func (f *fakeController) OutputMode() capture.OutputMode { return capture.OutputBoth }
func (f *fakeController) SupportsFlash() bool            { return true }
func (f *fakeController) SupportsFrontCamera() bool      { return false }

func (f *fakeController) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeController) Subscribe(fn func(capture.Event)) *capture.Subscription {
	return f.bus.Subscribe(fn)
}

func (f *fakeController) ConnectCameraToView(view capture.PreviewSurface, done func(bool, error)) {
	f.mu.Lock()
	err := f.connectErr
	f.mu.Unlock()
	if err == nil && f.frames != nil {
		view.AttachPreview(f.frames)
	}
	done(err == nil, err)
}

func (f *fakeController) SetCameraPosition(pos capture.Position, done func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.position = pos
	done(nil)
	return nil
}

func (f *fakeController) SetFlashMode(mode capture.FlashMode, done func(error)) error {
	f.mu.Lock()
	f.flash = mode
	f.mu.Unlock()
	done(nil)
	return nil
}

// SetCaptureQuality reports setErr through done rather than returning it.
func (f *fakeController) SetCaptureQuality(q capture.Quality, done func(error)) error {
	f.mu.Lock()
	err := f.setErr
	if err == nil {
		f.quality = q
	}
	f.mu.Unlock()
	done(err)
	return nil
}

func (f *fakeController) TakePhoto(done func(*capture.Photo, error)) {
	f.mu.Lock()
	p, err := f.photo, f.photoErr
	f.mu.Unlock()
	if err == nil && f.SetupState() != capture.StateRunning {
		err = capture.ErrNotRunning
	}
	if err != nil {
		done(nil, err)
		return
	}
	f.bus.Publish(capture.Event{Type: capture.EventPhotoTaken, Position: p.Position})
	done(p, nil)
}

func (f *fakeController) StartVideoRecording(done func(string, error)) {
	f.mu.Lock()
	if f.recording {
		f.mu.Unlock()
		done("", capture.ErrAlreadyRecording)
		return
	}
	f.recording = true
	f.mu.Unlock()
	done("/tmp/movie.mp4", nil)
}

func (f *fakeController) StopVideoRecording(done func(string, error)) {
	f.mu.Lock()
	if !f.recording {
		f.mu.Unlock()
		done("", capture.ErrNotRecording)
		return
	}
	f.recording = false
	f.mu.Unlock()
	done("/tmp/movie.mp4", nil)
}

func (f *fakeController) StartCaptureSession() { f.setState(capture.StateRunning) }
func (f *fakeController) StopCaptureSession()  { f.setState(capture.StateStopped) }

func (f *fakeController) setState(s capture.SetupState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.bus.Publish(capture.Event{Type: capture.EventStateChanged, State: s})
}

type staticFrames struct{ frame []byte }

func (s staticFrames) LatestFrame() ([]byte, error) { return s.frame, nil }

func testJPEG(w, h int) ([]byte, image.Image) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes(), img
}

func testPhoto() *capture.Photo {
	data, img := testJPEG(64, 48)
	return &capture.Photo{Data: data, Image: img, Position: capture.PositionBack, TakenAt: time.Now()}
}
