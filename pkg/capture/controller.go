package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Options fixes a controller's behaviour at construction.
type Options struct {
	OutputMode OutputMode
	// Position, Quality and FlashMode are the initial preferences.
	Position  Position
	Quality   Quality
	FlashMode FlashMode
	// MoviePath is the temporary recording target. It is removed before
	// every new recording.
	MoviePath string
	Logger    *slog.Logger
}

// Deps are the controller's collaborators.
type Deps struct {
	Authorizer Authorizer
	Devices    DeviceSelector
	Mutator    SessionMutator
	Session    Session
	// Callbacks is the context completions, events and preview attachment
	// run on. A private serial queue is used when nil.
	Callbacks Dispatcher
}

// Photo is a decoded still capture.
type Photo struct {
	Data     []byte
	Image    image.Image
	Position Position
	TakenAt  time.Time
}

// Controller owns a capture session. All session and hardware calls run on
// one serial worker; results are delivered on the callback context. Two
// operations issued concurrently are ordered by whichever reaches the worker
// first.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	auth    Authorizer
	devices DeviceSelector
	mutator SessionMutator
	session Session

	worker         *Queue
	callbacks      Dispatcher
	ownedCallbacks *Queue
	bus            *Bus
	rec            recorder

	mu       sync.RWMutex
	state    SetupState
	position Position
	flash    FlashMode
	quality  Quality
	still    StillImageOutput
	movie    MovieOutput

	// worker only
	configured  bool
	videoDevice Device

	closeOnce sync.Once
}

// NewController wires a controller from explicit collaborators.
func NewController(opts Options, deps Deps) (*Controller, error) {
	if deps.Authorizer == nil || deps.Devices == nil || deps.Mutator == nil || deps.Session == nil {
		return nil, errors.New("capture: authorizer, devices, mutator and session are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MoviePath == "" {
		opts.MoviePath = filepath.Join(os.TempDir(), "capturekit-movie.mp4")
	}
	c := &Controller{
		opts:     opts,
		logger:   opts.Logger.With("component", "controller"),
		auth:     deps.Authorizer,
		devices:  deps.Devices,
		mutator:  deps.Mutator,
		session:  deps.Session,
		state:    StateNotDetermined,
		position: opts.Position,
		flash:    opts.FlashMode,
		quality:  opts.Quality,
	}
	c.callbacks = deps.Callbacks
	if c.callbacks == nil {
		c.ownedCallbacks = NewQueue("callbacks", opts.Logger)
		c.callbacks = c.ownedCallbacks
	}
	c.worker = NewQueue("session", opts.Logger)
	c.bus = NewBus(c.callbacks)
	recordState(c.state)
	return c, nil
}

// Host bundles the platform APIs NewDefault needs.
type Host interface {
	PermissionHost
	DeviceHost
}

// NewDefault builds a controller with the default Gate, Selector and
// Mutator sharing one callback queue.
func NewDefault(opts Options, host Host, session Session, maxMovieDuration time.Duration, minFreeDiskSpace int64) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callbacks := NewQueue("callbacks", logger)
	c, err := NewController(opts, Deps{
		Authorizer: NewGate(host, callbacks, logger),
		Devices:    NewSelector(host, logger),
		Mutator:    NewMutator(maxMovieDuration, minFreeDiskSpace, logger),
		Session:    session,
		Callbacks:  callbacks,
	})
	if err != nil {
		callbacks.Close()
		return nil, err
	}
	c.ownedCallbacks = callbacks
	return c, nil
}

// SetupState reports the lifecycle state.
func (c *Controller) SetupState() SetupState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// AuthorizationStatus reports camera permission.
func (c *Controller) AuthorizationStatus() AuthorizationStatus {
	return c.auth.Status(MediaVideo)
}

// CameraPosition reports the position of the active camera, or the
// preferred position before the session is configured.
func (c *Controller) CameraPosition() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// CaptureQuality reports the current quality preset.
func (c *Controller) CaptureQuality() Quality {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quality
}

// FlashMode reports the flash mode used for the next photo.
func (c *Controller) FlashMode() FlashMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flash
}

// OutputMode reports the fixed output mode.
func (c *Controller) OutputMode() OutputMode {
	return c.opts.OutputMode
}

// SupportsFlash reports whether any back camera has a flash.
func (c *Controller) SupportsFlash() bool {
	for _, d := range c.devices.DevicesForPosition(PositionBack) {
		if d.HasFlash() {
			return true
		}
	}
	return false
}

// SupportsFrontCamera reports whether a front camera is present right now.
func (c *Controller) SupportsFrontCamera() bool {
	return c.devices.AvailablePositions(MediaVideo)[PositionFront]
}

// IsRecording reports whether a recording holds the in-flight slot.
func (c *Controller) IsRecording() bool {
	return c.rec.active()
}

// Subscribe registers fn for property-change events on the callback
// context. Call Unsubscribe on the returned handle when done.
func (c *Controller) Subscribe(fn func(Event)) *Subscription {
	return c.bus.Subscribe(fn)
}

// NotifyDevicesChanged tells subscribers the hardware configuration changed.
// Positions are recomputed on the next query.
func (c *Controller) NotifyDevicesChanged() {
	c.logger.Info("Capture devices changed")
	c.bus.Publish(Event{Type: EventDevicesChanged})
}

func (c *Controller) setState(s SetupState) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old == s {
		return
	}
	c.logger.Info("Setup state changed", "from", old, "to", s)
	recordState(s)
	c.bus.Publish(Event{Type: EventStateChanged, State: s})
}

func (c *Controller) setPosition(p Position) {
	c.mu.Lock()
	changed := c.position != p
	c.position = p
	c.mu.Unlock()
	if changed {
		c.bus.Publish(Event{Type: EventPositionChanged, Position: p})
	}
}

func (c *Controller) setFlash(f FlashMode) {
	c.mu.Lock()
	changed := c.flash != f
	c.flash = f
	c.mu.Unlock()
	if changed {
		c.bus.Publish(Event{Type: EventFlashModeChanged, FlashMode: f})
	}
}

func (c *Controller) setQuality(q Quality) {
	c.mu.Lock()
	changed := c.quality != q
	c.quality = q
	c.mu.Unlock()
	if changed {
		c.bus.Publish(Event{Type: EventQualityChanged, Quality: q})
	}
}

func (c *Controller) stillOutput() StillImageOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.still
}

func (c *Controller) movieOutput() MovieOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.movie
}

func (c *Controller) deliver(done func(error), err error) {
	if done == nil {
		return
	}
	c.callbacks.Dispatch(func() { done(err) })
}

func (c *Controller) deliverPath(done func(string, error), path string, err error) {
	if done == nil {
		return
	}
	c.callbacks.Dispatch(func() { done(path, err) })
}

// ConnectCameraToView authorizes, configures and starts the session, then
// attaches its preview to view. done receives the outcome on the callback
// context. Calling it while running only reattaches the preview.
func (c *Controller) ConnectCameraToView(view PreviewSurface, done func(ok bool, err error)) {
	finish := func(err error) {
		if err != nil {
			recordFailure("connect", err)
		}
		if done != nil {
			c.callbacks.Dispatch(func() { done(err == nil, err) })
		}
	}
	if err := c.worker.Submit(func() { c.connect(view, finish) }); err != nil {
		finish(err)
	}
}

func (c *Controller) connect(view PreviewSurface, finish func(error)) {
	if c.SetupState() == StateRunning {
		c.attach(view)
		finish(nil)
		return
	}

	if !c.devices.SupportsCapture() {
		c.setState(StateConfigurationFailed)
		finish(fmt.Errorf("no camera: %w", ErrNotSupported))
		return
	}

	switch c.auth.Status(MediaVideo) {
	case AuthDenied:
		c.setState(StateNotAuthorized)
		finish(ErrNotAuthorized)
		return
	case AuthRestricted:
		c.setState(StateConfigurationFailed)
		finish(ErrRestricted)
		return
	case AuthNotDetermined:
		if !c.auth.Await(context.Background(), MediaVideo) {
			c.setState(StateNotAuthorized)
			finish(ErrNotAuthorized)
			return
		}
	}

	if err := c.configure(); err != nil {
		c.logger.Error("Session configuration failed", "error", err)
		c.setState(StateConfigurationFailed)
		finish(err)
		return
	}
	c.setState(StateSuccess)

	if err := c.session.Start(); err != nil {
		c.logger.Error("Session start failed", "error", err)
		c.setState(StateConfigurationFailed)
		finish(fmt.Errorf("%w: start session: %w", ErrSetupFailed, err))
		return
	}
	c.setState(StateRunning)
	c.attach(view)
	finish(nil)
}

func (c *Controller) attach(view PreviewSurface) {
	if view == nil {
		return
	}
	src := c.session.Preview()
	c.callbacks.Dispatch(func() { view.AttachPreview(src) })
}

// configure installs the camera input and the outputs for the output mode.
// Outputs already created are reused.
func (c *Controller) configure() error {
	if c.configured {
		return nil
	}
	d, err := c.devices.Device(MediaVideo, c.CameraPosition())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	if err := c.mutator.SetInputsForDevice(c.session, d); err != nil {
		return err
	}
	c.videoDevice = d
	c.setPosition(d.Position())

	if err := c.mutator.SetPreset(c.session, c.CaptureQuality()); err != nil {
		c.logger.Warn("Preset not applied", "quality", c.CaptureQuality(), "error", err)
	}

	if c.opts.OutputMode.stills() && c.stillOutput() == nil {
		out, err := c.mutator.AddStillImageOutput(c.session)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.still = out
		c.mu.Unlock()
	}
	if c.opts.OutputMode.movies() && c.movieOutput() == nil {
		if _, err := c.ensureMovieOutput(); err != nil {
			return err
		}
	}

	c.applyFlash(d)
	c.configured = true
	return nil
}

// applyFlash pushes the current flash preference to d when it can take it.
func (c *Controller) applyFlash(d Device) {
	mode := c.FlashMode()
	if !d.HasFlash() || !d.SupportsFlashMode(mode) {
		return
	}
	if err := d.LockForConfiguration(); err != nil {
		c.logger.Warn("Flash mode not applied", "device", d.ID(), "error", err)
		return
	}
	d.SetFlashMode(mode)
	d.UnlockForConfiguration()
}

func (c *Controller) ensureMovieOutput() (MovieOutput, error) {
	if out := c.movieOutput(); out != nil {
		return out, nil
	}
	out, err := c.mutator.AddMovieOutput(c.session)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.movie = out
	c.mu.Unlock()
	return out, nil
}

// SetCameraPosition switches to a camera at pos. It fails immediately with
// ErrSetupFailed when no camera is mounted at pos; failures on the worker go
// to done, which may be nil.
func (c *Controller) SetCameraPosition(pos Position, done func(error)) error {
	if pos != PositionUnspecified && len(c.devices.DevicesForPosition(pos)) == 0 {
		err := fmt.Errorf("%w: no %s camera", ErrSetupFailed, pos)
		recordFailure("set_position", err)
		return err
	}
	return c.worker.Submit(func() {
		err := c.applyPosition(pos)
		if err != nil {
			recordFailure("set_position", err)
			c.logger.Warn("Camera position not applied", "position", pos, "error", err)
		}
		c.deliver(done, err)
	})
}

func (c *Controller) applyPosition(pos Position) error {
	if !c.configured {
		c.setPosition(pos)
		return nil
	}
	d, err := c.devices.Device(MediaVideo, pos)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	// Device falls back to any camera; a switch must land on pos.
	if pos != PositionUnspecified && d.Position() != pos {
		return fmt.Errorf("%w: no %s camera", ErrSetupFailed, pos)
	}
	if c.videoDevice != nil && c.videoDevice.ID() == d.ID() {
		c.setPosition(d.Position())
		return nil
	}
	if err := c.mutator.SetInputsForDevice(c.session, d); err != nil {
		return err
	}
	c.videoDevice = d
	c.setPosition(d.Position())
	c.applyFlash(d)
	return nil
}

// SetFlashMode sets the back camera's flash. It fails immediately with
// ErrNotSupported when the back camera has no flash or lacks mode; the
// stored mode only changes once the device accepted it.
func (c *Controller) SetFlashMode(mode FlashMode, done func(error)) error {
	backs := c.devices.DevicesForPosition(PositionBack)
	if len(backs) == 0 {
		err := fmt.Errorf("%w: no back camera", ErrNotSupported)
		recordFailure("set_flash", err)
		return err
	}
	back := backs[0]
	if !back.HasFlash() || !back.SupportsFlashMode(mode) {
		err := fmt.Errorf("%w: flash %s on %s", ErrNotSupported, mode, back.ID())
		recordFailure("set_flash", err)
		return err
	}
	return c.worker.Submit(func() {
		if err := back.LockForConfiguration(); err != nil {
			err = fmt.Errorf("%w: lock %s: %w", ErrSetupFailed, back.ID(), err)
			recordFailure("set_flash", err)
			c.deliver(done, err)
			return
		}
		back.SetFlashMode(mode)
		back.UnlockForConfiguration()
		c.setFlash(mode)
		c.deliver(done, nil)
	})
}

// SetCaptureQuality changes the session preset.
func (c *Controller) SetCaptureQuality(q Quality, done func(error)) error {
	return c.worker.Submit(func() {
		if c.configured {
			if err := c.mutator.SetPreset(c.session, q); err != nil {
				recordFailure("set_quality", err)
				c.deliver(done, err)
				return
			}
		}
		c.setQuality(q)
		c.deliver(done, nil)
	})
}

// TakePhoto captures and decodes one still image. It fails without touching
// the session when the controller is not running.
func (c *Controller) TakePhoto(done func(*Photo, error)) {
	fail := func(err error) {
		recordFailure("take_photo", err)
		if done != nil {
			c.callbacks.Dispatch(func() { done(nil, err) })
		}
	}
	if c.SetupState() != StateRunning {
		fail(ErrNotRunning)
		return
	}
	still := c.stillOutput()
	if still == nil {
		fail(ErrWrongConfiguration)
		return
	}
	err := c.worker.Submit(func() {
		if c.SetupState() != StateRunning {
			fail(ErrNotRunning)
			return
		}
		photo, err := c.capturePhoto(still)
		if err != nil {
			c.logger.Error("Photo capture failed", "error", err)
			fail(err)
			return
		}
		recordPhoto()
		c.bus.Publish(Event{Type: EventPhotoTaken, Position: photo.Position})
		if done != nil {
			c.callbacks.Dispatch(func() { done(photo, nil) })
		}
	})
	if err != nil {
		fail(err)
	}
}

func (c *Controller) capturePhoto(still StillImageOutput) (*Photo, error) {
	data, err := still.Capture(context.Background(), c.FlashMode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageCaptureFailed, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrImageCaptureFailed, err)
	}
	return &Photo{
		Data:     data,
		Image:    img,
		Position: c.CameraPosition(),
		TakenAt:  time.Now(),
	}, nil
}

// StartVideoRecording starts recording to the controller's movie path. done
// receives the path once recording is under way. Only one recording may be
// in flight; a second start fails with ErrAlreadyRecording.
func (c *Controller) StartVideoRecording(done func(path string, err error)) {
	fail := func(err error) {
		recordFailure("start_recording", err)
		c.deliverPath(done, "", err)
	}
	if c.SetupState() != StateRunning {
		fail(ErrNotRunning)
		return
	}
	if !c.opts.OutputMode.movies() {
		fail(ErrWrongConfiguration)
		return
	}
	rec, err := c.rec.reserve(c.opts.MoviePath)
	if err != nil {
		fail(err)
		return
	}
	if err := c.worker.Submit(func() { c.startRecording(rec, done) }); err != nil {
		c.abortRecording(rec, err, done)
	}
}

func (c *Controller) abortRecording(rec *recording, err error, done func(string, error)) {
	recordFailure("start_recording", err)
	stop := c.rec.release(rec)
	c.deliverPath(done, "", err)
	c.deliverPath(stop, "", ErrNotRecording)
}

func (c *Controller) startRecording(rec *recording, done func(string, error)) {
	if c.SetupState() != StateRunning {
		c.abortRecording(rec, ErrNotRunning, done)
		return
	}
	out, err := c.ensureMovieOutput()
	if err != nil {
		c.abortRecording(rec, err, done)
		return
	}
	c.ensureAudioInput()

	if err := os.Remove(rec.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.abortRecording(rec, fmt.Errorf("%w: clear %s: %w", ErrSetupFailed, rec.path, err), done)
		return
	}
	err = out.StartRecording(rec.path, func(path string, ferr error) {
		c.recordingFinished(rec, path, ferr)
	})
	if err != nil {
		c.abortRecording(rec, fmt.Errorf("%w: start recording: %w", ErrSetupFailed, err), done)
		return
	}
	c.logger.Info("Recording started", "id", rec.id, "path", rec.path)
	c.bus.Publish(Event{Type: EventRecordingStarted, RecordingID: rec.id, Path: rec.path, Position: c.CameraPosition()})
	c.deliverPath(done, rec.path, nil)
}

// ensureAudioInput adds a microphone the first time a recording starts.
// Audio permission is only requested here so the prompt never fires during
// camera setup. Without audio the movie is recorded silent.
func (c *Controller) ensureAudioInput() {
	if !c.auth.Await(context.Background(), MediaAudio) {
		c.logger.Info("Recording without audio: microphone not authorized")
		return
	}
	mic, err := c.devices.Device(MediaAudio, PositionUnspecified)
	if err != nil {
		c.logger.Info("Recording without audio", "error", err)
		return
	}
	if err := c.mutator.AddAudioInput(c.session, mic); err != nil {
		c.logger.Warn("Audio input not added", "device", mic.ID(), "error", err)
	}
}

// recordingFinished frees the slot on the callback context after
// subscribers have seen the file; the next recording reuses the movie path.
func (c *Controller) recordingFinished(rec *recording, path string, err error) {
	recordRecording(err)
	if err != nil {
		c.logger.Error("Recording failed", "id", rec.id, "path", path, "error", err)
	} else {
		c.logger.Info("Recording finished", "id", rec.id, "path", path)
	}
	c.bus.Publish(Event{Type: EventRecordingFinished, RecordingID: rec.id, Path: path, Position: c.CameraPosition(), Err: err})
	c.callbacks.Dispatch(func() {
		if stop := c.rec.release(rec); stop != nil {
			stop(path, err)
		}
	})
}

// StopVideoRecording stops the in-flight recording. done receives the file
// path once it is complete. Without a recording this is a no-op and done
// receives ErrNotRecording.
func (c *Controller) StopVideoRecording(done func(path string, err error)) {
	rec, err := c.rec.requestStop(done)
	if err != nil {
		c.deliverPath(done, "", err)
		return
	}
	c.logger.Info("Stopping recording", "id", rec.id)
	if err := c.worker.Submit(c.stopMovie); err != nil {
		c.logger.Warn("Stop not submitted", "error", err)
	}
}

func (c *Controller) stopMovie() {
	if out := c.movieOutput(); out != nil && out.IsRecording() {
		out.StopRecording()
	}
}

// StartCaptureSession restarts a stopped session.
func (c *Controller) StartCaptureSession() {
	if err := c.worker.Submit(func() {
		if c.SetupState() != StateStopped {
			return
		}
		if err := c.session.Start(); err != nil {
			recordFailure("start_session", err)
			c.logger.Error("Session restart failed", "error", err)
			return
		}
		c.setState(StateRunning)
	}); err != nil {
		c.logger.Warn("Start not submitted", "error", err)
	}
}

// StopCaptureSession stops a running session, finishing any recording.
func (c *Controller) StopCaptureSession() {
	if err := c.worker.Submit(c.stopSession); err != nil {
		c.logger.Warn("Stop not submitted", "error", err)
	}
}

func (c *Controller) stopSession() {
	if c.SetupState() != StateRunning {
		return
	}
	c.stopMovie()
	c.session.Stop()
	c.setState(StateStopped)
}

// Close stops the session and releases the worker. Pending operations run
// before Close returns.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.worker.Sync(c.stopSession)
		c.worker.Close()
		if c.ownedCallbacks != nil {
			c.ownedCallbacks.Close()
		}
	})
}
