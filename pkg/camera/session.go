package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/wachiwi/capturekit/pkg/capture"
)

// Input attaches a Device to a Session.
type Input struct {
	dev *Device
}

func (i *Input) Device() capture.Device { return i.dev }

// Session implements capture.Session. While running it keeps one preview
// stream for its video input; committing a configuration that changes the
// camera or preset restarts that stream.
type Session struct {
	host   *Host
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	depth   int
	inputs  []*Input
	outputs []capture.Output
	preset  capture.Quality
	running bool

	// what the current stream was built for
	streamDev    *Device
	streamPreset capture.Quality

	streamMu sync.RWMutex
	stream   stream

	loggedFallback bool
}

func newSession(h *Host) *Session {
	return &Session{
		host:   h,
		cfg:    h.cfg,
		logger: h.logger.With("component", "session"),
		preset: capture.QualityHigh,
	}
}

func (s *Session) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
}

// CommitConfiguration closes the outermost bracket and applies stream
// changes if the session is running.
func (s *Session) CommitConfiguration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		return errors.New("commit without begin")
	}
	s.depth--
	if s.depth > 0 || !s.running {
		return nil
	}
	dev := s.videoDeviceLocked()
	if dev == s.streamDev && s.preset == s.streamPreset {
		return nil
	}
	s.stopStream()
	if dev == nil {
		s.running = false
		return errors.New("no video input")
	}
	return s.startStream(dev)
}

func (s *Session) checkBracket(op string) {
	if s.depth == 0 {
		s.logger.Warn("Session changed outside a configuration bracket", "op", op)
	}
}

func (s *Session) NewInput(d capture.Device) (capture.Input, error) {
	dev, ok := d.(*Device)
	if !ok {
		return nil, fmt.Errorf("%s: %w", d.ID(), errForeignDevice)
	}
	return &Input{dev: dev}, nil
}

func (s *Session) Inputs() []capture.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	inputs := make([]capture.Input, len(s.inputs))
	for i, in := range s.inputs {
		inputs[i] = in
	}
	return inputs
}

// CanAddInput allows one input per media type.
func (s *Session) CanAddInput(in capture.Input) bool {
	input, ok := in.(*Input)
	if !ok {
		return false
	}
	media := input.dev.MediaType()
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.ContainsFunc(s.inputs, func(have *Input) bool {
		return have.dev.MediaType() == media
	})
}

func (s *Session) AddInput(in capture.Input) {
	input, ok := in.(*Input)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket("add_input")
	s.inputs = append(s.inputs, input)
}

func (s *Session) RemoveInput(in capture.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket("remove_input")
	s.inputs = slices.DeleteFunc(s.inputs, func(have *Input) bool { return capture.Input(have) == in })
}

func (s *Session) NewStillImageOutput() capture.StillImageOutput {
	return &StillOutput{session: s}
}

func (s *Session) NewMovieOutput() capture.MovieOutput {
	return &MovieOutput{session: s, logger: s.logger.With("output", "movie")}
}

func (s *Session) Outputs() []capture.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outputs)
}

// CanAddOutput allows one output of each kind.
func (s *Session) CanAddOutput(out capture.Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.ContainsFunc(s.outputs, func(have capture.Output) bool {
		return have.Kind() == out.Kind()
	})
}

func (s *Session) AddOutput(out capture.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket("add_output")
	s.outputs = append(s.outputs, out)
}

func (s *Session) CanSetPreset(q capture.Quality) bool {
	switch q {
	case capture.QualityHigh, capture.QualityMedium, capture.QualityLow, capture.QualityPhoto:
		return true
	}
	return false
}

func (s *Session) SetPreset(q capture.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkBracket("set_preset")
	s.preset = q
}

// Start launches the preview stream for the video input and blocks until
// the first frame arrives.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	dev := s.videoDeviceLocked()
	if dev == nil {
		return errors.New("no video input")
	}
	if err := s.startStream(dev); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.stopStream()
	s.running = false
	s.logger.Info("Session stopped")
}

func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Preview returns the session itself; frames follow camera switches.
func (s *Session) Preview() capture.FrameSource { return s }

// LatestFrame returns the newest preview frame.
func (s *Session) LatestFrame() ([]byte, error) {
	s.streamMu.RLock()
	defer s.streamMu.RUnlock()
	if s.stream == nil {
		return nil, errNoStream
	}
	return s.stream.LatestFrame()
}

// VideoDevice returns the attached camera, if any.
func (s *Session) VideoDevice() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoDeviceLocked()
}

func (s *Session) videoDeviceLocked() *Device {
	for _, in := range s.inputs {
		if in.dev.MediaType() == capture.MediaVideo {
			return in.dev
		}
	}
	return nil
}

func (s *Session) audioDevice() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.inputs {
		if in.dev.MediaType() == capture.MediaAudio {
			return in.dev
		}
	}
	return nil
}

// startStream requires s.mu. A camera that fails to start is replaced by
// generated frames when Fallback is set.
func (s *Session) startStream(dev *Device) error {
	res := presetResolution(s.preset, s.cfg)
	st := dev.videoStream(s.cfg, res, s.host)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StartTimeout)
	defer cancel()
	if err := st.Start(ctx); err != nil {
		if !s.cfg.Fallback {
			return fmt.Errorf("start %s: %w", dev.ID(), err)
		}
		if !s.loggedFallback {
			s.logger.Warn("Camera capture failed, using placeholder frames", "device", dev.ID(), "error", err)
			s.loggedFallback = true
		}
		st = newPlaceholderStream(res, s.cfg.FPS)
		if err := st.Start(ctx); err != nil {
			return err
		}
	}

	s.streamMu.Lock()
	s.stream = st
	s.streamMu.Unlock()
	s.streamDev = dev
	s.streamPreset = s.preset
	s.logger.Info("Camera started", "device", dev.ID(), "resolution", res.String(), "fps", s.cfg.FPS)
	return nil
}

func (s *Session) stopStream() {
	s.streamMu.Lock()
	st := s.stream
	s.stream = nil
	s.streamMu.Unlock()
	if st != nil {
		st.Stop()
	}
	s.streamDev = nil
}
