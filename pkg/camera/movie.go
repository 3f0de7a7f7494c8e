package camera

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// MovieOutput records the session's preview stream to a file by piping
// MJPEG frames into ffmpeg. Audio comes straight from the session's
// microphone input.
type MovieOutput struct {
	session *Session
	logger  *slog.Logger

	mu      sync.Mutex
	maxDur  time.Duration
	minFree int64
	rec     *movieRecording
}

type movieRecording struct {
	path     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stop     chan struct{}
	stopOnce sync.Once
	stopped  bool
}

func (r *movieRecording) requestStop(byCaller bool) {
	r.stopOnce.Do(func() {
		r.stopped = byCaller
		close(r.stop)
	})
}

func (o *MovieOutput) Kind() string { return "movie" }

func (o *MovieOutput) SetMaxDuration(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxDur = d
}

func (o *MovieOutput) SetMinFreeDiskSpace(bytes int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.minFree = bytes
}

func (o *MovieOutput) IsRecording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rec != nil
}

// StartRecording starts ffmpeg writing to path. finished runs once ffmpeg
// exits: after StopRecording, after the maximum duration
// (ErrMaxDurationReached) or on failure.
func (o *MovieOutput) StartRecording(path string, finished func(path string, err error)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rec != nil {
		return fmt.Errorf("movie output busy with %s", o.rec.path)
	}
	if o.minFree > 0 {
		free, err := freeSpace(filepath.Dir(path))
		if err != nil {
			o.logger.Warn("Free space unknown", "dir", filepath.Dir(path), "error", err)
		} else if free < o.minFree {
			return fmt.Errorf("%d bytes free, %d required: %w", free, o.minFree, ErrInsufficientSpace)
		}
	}

	var audio []string
	if mic := o.session.audioDevice(); mic != nil {
		audio = mic.audioInputArgs()
	}
	args := movieArgs(path, o.session.cfg.FPS, audio, o.maxDur)
	cmd := exec.Command(o.session.cfg.FFmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	rec := &movieRecording{path: path, cmd: cmd, stdin: stdin, stop: make(chan struct{})}
	o.rec = rec
	o.logger.Info("Recording to file", "path", path, "audio", len(audio) > 0, "max_duration", o.maxDur)

	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		o.feed(rec)
	}()
	go func() {
		err := cmd.Wait()
		rec.requestStop(false)
		<-feederDone

		o.mu.Lock()
		o.rec = nil
		limited := o.maxDur > 0
		o.mu.Unlock()

		switch {
		case err != nil:
			err = fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		case !rec.stopped && limited:
			err = ErrMaxDurationReached
		}
		finished(path, err)
	}()
	return nil
}

// feed writes preview frames to ffmpeg at the configured rate until the
// recording stops, then closes stdin so ffmpeg finalizes the file.
func (o *MovieOutput) feed(rec *movieRecording) {
	defer rec.stdin.Close()
	ticker := time.NewTicker(time.Second / time.Duration(max(o.session.cfg.FPS, 1)))
	defer ticker.Stop()
	for {
		select {
		case <-rec.stop:
			return
		case <-ticker.C:
			frame, err := o.session.LatestFrame()
			if err != nil {
				continue
			}
			if _, err := rec.stdin.Write(frame); err != nil {
				return
			}
		}
	}
}

func (o *MovieOutput) StopRecording() {
	o.mu.Lock()
	rec := o.rec
	o.mu.Unlock()
	if rec != nil {
		rec.requestStop(true)
	}
}

// movieArgs encodes MJPEG frames from stdin to MPEG-4, with AAC audio when
// an audio input is given. Both encoders are built into every ffmpeg.
func movieArgs(path string, fps int, audio []string, maxDur time.Duration) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "mjpeg",
		"-use_wallclock_as_timestamps", "1",
		"-i", "-",
	}
	args = append(args, audio...)
	args = append(args,
		"-c:v", "mpeg4",
		"-q:v", "4",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
	)
	if len(audio) > 0 {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	if maxDur > 0 {
		args = append(args, "-t", strconv.FormatFloat(maxDur.Seconds(), 'f', 3, 64))
	}
	return append(args, path)
}
