package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// stream produces preview frames.
type stream interface {
	Start(ctx context.Context) error
	Stop()
	LatestFrame() ([]byte, error)
}

// processStream runs a capture command that writes MJPEG to stdout.
type processStream struct {
	name   string
	args   []string
	logger *slog.Logger
	frames *frameBuffer

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func newProcessStream(name string, args []string, logger *slog.Logger) *processStream {
	return &processStream{
		name:   name,
		args:   args,
		logger: logger,
		frames: newFrameBuffer(staleAfter),
	}
}

// Start launches the process and waits for its first frame.
func (s *processStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.name, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.name, err)
	}
	s.logger.Info("Started camera streaming process", "command", s.name, "args", s.args)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pumpFrames(stdout, s.frames.store, s.logger); err != nil {
			s.logger.Error("Stream read error", "error", err)
		}
		if err := cmd.Wait(); err != nil {
			s.logger.Warn("Camera streaming process exited", "command", s.name, "error", err, "stderr", stderr.String())
		} else {
			s.logger.Info("Camera streaming process exited cleanly", "command", s.name)
		}
	}()

	readyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-readyCtx.Done():
		}
	}()
	if err := s.frames.waitReady(readyCtx); err != nil {
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("%s produced no frames: %w, stderr: %s", s.name, err, stderr.String())
	}
	s.cmd = cmd
	s.done = done
	return nil
}

func (s *processStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	<-s.done
	s.cmd = nil
}

func (s *processStream) LatestFrame() ([]byte, error) {
	return s.frames.LatestFrame()
}

// placeholderStream generates frames on a ticker.
type placeholderStream struct {
	res    resolution
	fps    int
	frames *frameBuffer

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Generated frames are capped at 10 fps; encoding is not free.
func newPlaceholderStream(res resolution, fps int) *placeholderStream {
	return &placeholderStream{
		res:    res,
		fps:    min(max(fps, 1), 10),
		frames: newFrameBuffer(0),
	}
}

func (s *placeholderStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	frame, err := generatePlaceholderFrame(s.res.width, s.res.height)
	if err != nil {
		return err
	}
	s.frames.store(frame)

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	return nil
}

func (s *placeholderStream) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if frame, err := generatePlaceholderFrame(s.res.width, s.res.height); err == nil {
				s.frames.store(frame)
			}
		}
	}
}

func (s *placeholderStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func (s *placeholderStream) LatestFrame() ([]byte, error) {
	return s.frames.LatestFrame()
}

// failedStream reports a stream that could not be built.
type failedStream struct{ err error }

func (s *failedStream) Start(context.Context) error   { return s.err }
func (s *failedStream) Stop()                         {}
func (s *failedStream) LatestFrame() ([]byte, error) { return nil, s.err }
