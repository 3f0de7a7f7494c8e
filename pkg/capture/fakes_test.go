package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"slices"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

type fakeDevice struct {
	id       string
	media    MediaType
	pos      Position
	hasFlash bool
	modes    map[FlashMode]bool
	lockErr  error

	mu     sync.Mutex
	locked int
	mode   FlashMode
	sets   int
}

func newCamera(id string, pos Position) *fakeDevice {
	return &fakeDevice{id: id, media: MediaVideo, pos: pos}
}

func newFlashCamera(id string, pos Position, modes ...FlashMode) *fakeDevice {
	d := newCamera(id, pos)
	d.hasFlash = true
	d.modes = make(map[FlashMode]bool)
	for _, m := range modes {
		d.modes[m] = true
	}
	return d
}

func newMic(id string) *fakeDevice {
	return &fakeDevice{id: id, media: MediaAudio}
}

func (d *fakeDevice) ID() string           { return d.id }
func (d *fakeDevice) Name() string         { return "fake " + d.id }
func (d *fakeDevice) MediaType() MediaType { return d.media }
func (d *fakeDevice) Position() Position   { return d.pos }
func (d *fakeDevice) HasFlash() bool       { return d.hasFlash }
func (d *fakeDevice) SupportsFlashMode(m FlashMode) bool {
	return d.hasFlash && d.modes[m]
}

func (d *fakeDevice) LockForConfiguration() error {
	if d.lockErr != nil {
		return d.lockErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked++
	return nil
}

func (d *fakeDevice) UnlockForConfiguration() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked--
}

func (d *fakeDevice) SetFlashMode(m FlashMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked <= 0 {
		panic("flash mode set without configuration lock")
	}
	d.mode = m
	d.sets++
}

func (d *fakeDevice) flashMode() FlashMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

type fakeHost struct {
	mu       sync.Mutex
	status   map[MediaType]AuthorizationStatus
	grant    map[MediaType]bool
	requests map[MediaType]int
	devices  map[MediaType][]Device
}

func newFakeHost(devices ...*fakeDevice) *fakeHost {
	h := &fakeHost{
		status: map[MediaType]AuthorizationStatus{
			MediaVideo: AuthAuthorized,
			MediaAudio: AuthAuthorized,
		},
		grant:    make(map[MediaType]bool),
		requests: make(map[MediaType]int),
		devices:  make(map[MediaType][]Device),
	}
	for _, d := range devices {
		h.devices[d.media] = append(h.devices[d.media], d)
	}
	return h
}

func (h *fakeHost) setStatus(media MediaType, s AuthorizationStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[media] = s
}

func (h *fakeHost) requestCount(media MediaType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[media]
}

func (h *fakeHost) AuthorizationStatus(media MediaType) AuthorizationStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status[media]
}

func (h *fakeHost) RequestAccess(ctx context.Context, media MediaType) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests[media]++
	granted := h.grant[media]
	if granted {
		h.status[media] = AuthAuthorized
	} else {
		h.status[media] = AuthDenied
	}
	return granted, nil
}

// removeDevice simulates unplugging a device.
func (h *fakeHost) removeDevice(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for media, devices := range h.devices {
		h.devices[media] = slices.DeleteFunc(devices, func(d Device) bool { return d.ID() == id })
	}
}

func (h *fakeHost) Devices(media MediaType) ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Device(nil), h.devices[media]...), nil
}

type fakeInput struct{ dev Device }

func (i *fakeInput) Device() Device { return i.dev }

type fakeStill struct {
	mu       sync.Mutex
	codec    string
	data     []byte
	err      error
	captures int
	flashes  []FlashMode
}

func (s *fakeStill) Kind() string { return "still" }
func (s *fakeStill) SetCodec(c string) error {
	s.codec = c
	return nil
}
func (s *fakeStill) Codec() string { return s.codec }
func (s *fakeStill) Capture(ctx context.Context, flash FlashMode) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	s.flashes = append(s.flashes, flash)
	return s.data, s.err
}

func (s *fakeStill) captureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

type fakeMovie struct {
	mu        sync.Mutex
	maxDur    time.Duration
	minFree   int64
	recording bool
	path      string
	finished  func(string, error)
	startErr  error
	starts    int
}

func (m *fakeMovie) Kind() string                    { return "movie" }
func (m *fakeMovie) SetMaxDuration(d time.Duration)  { m.maxDur = d }
func (m *fakeMovie) SetMinFreeDiskSpace(bytes int64) { m.minFree = bytes }
func (m *fakeMovie) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *fakeMovie) StartRecording(path string, finished func(string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	if m.recording {
		return errors.New("output busy")
	}
	if err := os.WriteFile(path, []byte("movie"), 0644); err != nil {
		return err
	}
	m.recording = true
	m.path = path
	m.finished = finished
	m.starts++
	return nil
}

func (m *fakeMovie) StopRecording() {
	m.finish(nil)
}

// finish simulates the output ending the file on its own.
func (m *fakeMovie) finish(err error) {
	m.mu.Lock()
	if !m.recording {
		m.mu.Unlock()
		return
	}
	m.recording = false
	finished, path := m.finished, m.path
	m.mu.Unlock()
	go finished(path, err)
}

type fakeFrames struct{ frame []byte }

func (f *fakeFrames) LatestFrame() ([]byte, error) { return f.frame, nil }

type fakeSession struct {
	mu          sync.Mutex
	depth       int
	begins      int
	violations  int
	inputs      []Input
	outputs     []Output
	preset      Quality
	running     bool
	startErr    error
	commitErr   error
	rejectInput map[string]bool
	rejectOut   bool
	noPresets   bool
	starts      int

	still  *fakeStill
	movie  *fakeMovie
	frames *fakeFrames
}

func newFakeSession(photo []byte) *fakeSession {
	return &fakeSession{
		rejectInput: make(map[string]bool),
		still:       &fakeStill{data: photo},
		movie:       &fakeMovie{},
		frames:      &fakeFrames{frame: photo},
	}
}

func (s *fakeSession) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
	s.begins++
}

func (s *fakeSession) CommitConfiguration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth--
	return s.commitErr
}

func (s *fakeSession) checkBracket() {
	if s.depth == 0 {
		s.violations++
	}
}

func (s *fakeSession) NewInput(d Device) (Input, error) { return &fakeInput{dev: d}, nil }

func (s *fakeSession) Inputs() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Input(nil), s.inputs...)
}

func (s *fakeSession) CanAddInput(in Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.rejectInput[in.Device().ID()]
}

func (s *fakeSession) AddInput(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket()
	s.inputs = append(s.inputs, in)
}

func (s *fakeSession) RemoveInput(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket()
	for i, have := range s.inputs {
		if have == in {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			return
		}
	}
}

func (s *fakeSession) NewStillImageOutput() StillImageOutput { return s.still }
func (s *fakeSession) NewMovieOutput() MovieOutput           { return s.movie }

func (s *fakeSession) Outputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Output(nil), s.outputs...)
}

func (s *fakeSession) CanAddOutput(out Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.rejectOut
}

func (s *fakeSession) AddOutput(out Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket()
	s.outputs = append(s.outputs, out)
}

func (s *fakeSession) CanSetPreset(q Quality) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.noPresets
}

func (s *fakeSession) SetPreset(q Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket()
	s.preset = q
}

func (s *fakeSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *fakeSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeSession) Preview() FrameSource { return s.frames }

func (s *fakeSession) beginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins
}

func (s *fakeSession) videoInputIDs() []string {
	var ids []string
	for _, in := range s.Inputs() {
		if in.Device().MediaType() == MediaVideo {
			ids = append(ids, in.Device().ID())
		}
	}
	return ids
}

func (s *fakeSession) audioInputCount() int {
	n := 0
	for _, in := range s.Inputs() {
		if in.Device().MediaType() == MediaAudio {
			n++
		}
	}
	return n
}

type fakeView struct {
	attached chan FrameSource
}

func newFakeView() *fakeView { return &fakeView{attached: make(chan FrameSource, 8)} }

func (v *fakeView) AttachPreview(src FrameSource) { v.attached <- src }

// Helpers that turn callback APIs into blocking calls with a timeout.

func connectSync(t *testing.T, c *Controller, view PreviewSurface) (bool, error) {
	t.Helper()
	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	c.ConnectCameraToView(view, func(ok bool, err error) { ch <- result{ok, err} })
	select {
	case r := <-ch:
		return r.ok, r.err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for connect")
	}
	return false, nil
}

func photoSync(t *testing.T, c *Controller) (*Photo, error) {
	t.Helper()
	type result struct {
		p   *Photo
		err error
	}
	ch := make(chan result, 1)
	c.TakePhoto(func(p *Photo, err error) { ch <- result{p, err} })
	select {
	case r := <-ch:
		return r.p, r.err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for photo")
	}
	return nil, nil
}

func pathSync(t *testing.T, op func(func(string, error))) (string, error) {
	t.Helper()
	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	op(func(path string, err error) { ch <- result{path, err} })
	select {
	case r := <-ch:
		return r.path, r.err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for recording callback")
	}
	return "", nil
}

func errSync(t *testing.T, op func(func(error)) error) error {
	t.Helper()
	ch := make(chan error, 1)
	if err := op(func(err error) { ch <- err }); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completion")
	}
	return nil
}
