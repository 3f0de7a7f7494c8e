package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CodecJPEG is the only still-image codec the mutator configures.
const CodecJPEG = "jpeg"

// SessionMutator applies input and output changes to a session. Every method
// wraps its changes in one configuration bracket. Call only from the session
// worker; brackets are not safe across concurrent mutators.
type SessionMutator interface {
	SetInputsForDevice(s Session, d Device) error
	AddAudioInput(s Session, d Device) error
	AddStillImageOutput(s Session) (StillImageOutput, error)
	AddMovieOutput(s Session) (MovieOutput, error)
	SetPreset(s Session, q Quality) error
}

// Mutator is the default SessionMutator.
type Mutator struct {
	MaxMovieDuration time.Duration
	MinFreeDiskSpace int64

	logger *slog.Logger
}

func NewMutator(maxMovieDuration time.Duration, minFreeDiskSpace int64, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		MaxMovieDuration: maxMovieDuration,
		MinFreeDiskSpace: minFreeDiskSpace,
		logger:           logger.With("component", "mutator"),
	}
}

// bracket runs fn between BeginConfiguration and CommitConfiguration. The
// commit happens even when fn fails so the session never stays open.
func (m *Mutator) bracket(s Session, fn func() error) error {
	s.BeginConfiguration()
	err := fn()
	if cerr := s.CommitConfiguration(); cerr != nil {
		cerr = fmt.Errorf("%w: commit: %w", ErrSetupFailed, cerr)
		if err == nil {
			return cerr
		}
		return errors.Join(err, cerr)
	}
	return err
}

func inputsOf(s Session, media MediaType) []Input {
	var matched []Input
	for _, in := range s.Inputs() {
		if in.Device().MediaType() == media {
			matched = append(matched, in)
		}
	}
	return matched
}

// SetInputsForDevice replaces the session's video input with one for d. If
// the session rejects the new input the previous inputs are restored.
func (m *Mutator) SetInputsForDevice(s Session, d Device) error {
	in, err := s.NewInput(d)
	if err != nil {
		return fmt.Errorf("%w: input for %s: %w", ErrSetupFailed, d.ID(), err)
	}
	return m.bracket(s, func() error {
		old := inputsOf(s, d.MediaType())
		for _, o := range old {
			s.RemoveInput(o)
		}
		if !s.CanAddInput(in) {
			for _, o := range old {
				s.AddInput(o)
			}
			return fmt.Errorf("%w: session rejected input %s", ErrSetupFailed, d.ID())
		}
		s.AddInput(in)
		m.logger.Info("Input installed", "device", d.ID(), "position", d.Position(), "replaced", len(old))
		return nil
	})
}

// AddAudioInput adds a microphone input unless one is already attached.
func (m *Mutator) AddAudioInput(s Session, d Device) error {
	if len(inputsOf(s, MediaAudio)) > 0 {
		return nil
	}
	in, err := s.NewInput(d)
	if err != nil {
		return fmt.Errorf("%w: audio input for %s: %w", ErrSetupFailed, d.ID(), err)
	}
	return m.bracket(s, func() error {
		if !s.CanAddInput(in) {
			return fmt.Errorf("%w: session rejected audio input %s", ErrSetupFailed, d.ID())
		}
		s.AddInput(in)
		m.logger.Info("Audio input installed", "device", d.ID())
		return nil
	})
}

// AddStillImageOutput creates a JPEG still output and attaches it. Call it
// once per session; the controller caches the result.
func (m *Mutator) AddStillImageOutput(s Session) (StillImageOutput, error) {
	out := s.NewStillImageOutput()
	if err := out.SetCodec(CodecJPEG); err != nil {
		return nil, fmt.Errorf("%w: still codec: %w", ErrSetupFailed, err)
	}
	err := m.bracket(s, func() error {
		if !s.CanAddOutput(out) {
			return fmt.Errorf("%w: session rejected still image output", ErrSetupFailed)
		}
		s.AddOutput(out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Still image output added", "codec", out.Codec())
	return out, nil
}

// AddMovieOutput creates a movie output limited by the mutator's duration
// and free space settings and attaches it.
func (m *Mutator) AddMovieOutput(s Session) (MovieOutput, error) {
	out := s.NewMovieOutput()
	out.SetMaxDuration(m.MaxMovieDuration)
	out.SetMinFreeDiskSpace(m.MinFreeDiskSpace)
	err := m.bracket(s, func() error {
		if !s.CanAddOutput(out) {
			return fmt.Errorf("%w: session rejected movie output", ErrSetupFailed)
		}
		s.AddOutput(out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Movie output added", "max_duration", m.MaxMovieDuration, "min_free_bytes", m.MinFreeDiskSpace)
	return out, nil
}

// SetPreset changes the session preset.
func (m *Mutator) SetPreset(s Session, q Quality) error {
	return m.bracket(s, func() error {
		if !s.CanSetPreset(q) {
			return fmt.Errorf("%w: preset %s", ErrNotSupported, q)
		}
		s.SetPreset(q)
		return nil
	})
}
