package camera

import (
	"bytes"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wachiwi/capturekit/pkg/capture"
)

func newPlaceholderHost(t *testing.T) *Host {
	t.Helper()
	root := t.TempDir()
	h, err := NewHost(Config{
		Width:       160,
		Height:      120,
		FPS:         10,
		Placeholder: true,
		DevRoot:     filepath.Join(root, "dev"),
		SysRoot:     filepath.Join(root, "sys"),
		ProcRoot:    filepath.Join(root, "proc"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestPlaceholderDevice(t *testing.T) {
	h := newPlaceholderHost(t)

	devices, err := h.Devices(capture.MediaVideo)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	d := devices[0]
	assert.Equal(t, PlaceholderID, d.ID())
	assert.Equal(t, capture.PositionBack, d.Position())
	assert.False(t, d.HasFlash())

	again, err := h.Devices(capture.MediaVideo)
	require.NoError(t, err)
	assert.Same(t, d, again[0], "device values are reused")

	require.NoError(t, d.LockForConfiguration())
	assert.ErrorIs(t, d.LockForConfiguration(), ErrDeviceBusy)
	d.UnlockForConfiguration()
	assert.NoError(t, d.LockForConfiguration())
	d.UnlockForConfiguration()
}

func TestSessionPreviewAndStill(t *testing.T) {
	h := newPlaceholderHost(t)
	s := h.NewSession()
	devices, err := h.Devices(capture.MediaVideo)
	require.NoError(t, err)

	assert.Error(t, s.Start(), "no video input")
	_, err = s.LatestFrame()
	assert.ErrorIs(t, err, errNoStream)

	in, err := s.NewInput(devices[0])
	require.NoError(t, err)
	still := s.NewStillImageOutput()
	require.NoError(t, still.SetCodec(capture.CodecJPEG))
	assert.ErrorIs(t, still.SetCodec("heic"), ErrUnsupportedCodec)

	s.BeginConfiguration()
	require.True(t, s.CanAddInput(in))
	s.AddInput(in)
	require.True(t, s.CanAddOutput(still))
	s.AddOutput(still)
	assert.False(t, s.CanAddOutput(s.NewStillImageOutput()), "one still output per session")
	require.NoError(t, s.CommitConfiguration())
	assert.Error(t, s.CommitConfiguration(), "unbalanced commit")

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.True(t, s.IsRunning())

	data, err := still.Capture(t.Context(), capture.FlashOn)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())

	s.BeginConfiguration()
	s.SetPreset(capture.QualityLow)
	require.NoError(t, s.CommitConfiguration())
	require.Eventually(t, func() bool {
		frame, err := s.Preview().LatestFrame()
		if err != nil {
			return false
		}
		img, err := jpeg.Decode(bytes.NewReader(frame))
		return err == nil && img.Bounds().Dx() == 320
	}, 2*time.Second, 20*time.Millisecond, "preset change restarts the stream")

	s.Stop()
	assert.False(t, s.IsRunning())
	_, err = s.LatestFrame()
	assert.ErrorIs(t, err, errNoStream)
}

func TestControllerOnPlaceholderHost(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("avfoundation prompts for access")
	}
	h := newPlaceholderHost(t)
	c, err := capture.NewDefault(capture.Options{
		OutputMode: capture.OutputStillImage,
		MoviePath:  filepath.Join(t.TempDir(), "movie.mp4"),
	}, h, h.NewSession(), time.Minute, 0)
	require.NoError(t, err)
	defer c.Close()

	connected := make(chan error, 1)
	c.ConnectCameraToView(nil, func(ok bool, err error) { connected <- err })
	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect timed out")
	}
	assert.Equal(t, capture.StateRunning, c.SetupState())
	assert.Equal(t, capture.PositionBack, c.CameraPosition())
	assert.False(t, c.SupportsFrontCamera())

	photos := make(chan error, 1)
	c.TakePhoto(func(p *capture.Photo, err error) {
		if err == nil && p.Image.Bounds().Dx() != 160 {
			err = assert.AnError
		}
		photos <- err
	})
	select {
	case err := <-photos:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("photo timed out")
	}
}

func TestMovieOutputRejectsLowDiskSpace(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("no free space check on this platform")
	}
	h := newPlaceholderHost(t)
	out := h.NewSession().NewMovieOutput()
	out.SetMinFreeDiskSpace(1 << 62)

	err := out.StartRecording(filepath.Join(t.TempDir(), "movie.mp4"), func(string, error) {})
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.False(t, out.IsRecording())
}

func TestMovieOutputRecords(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	h := newPlaceholderHost(t)
	s := h.NewSession()
	devices, err := h.Devices(capture.MediaVideo)
	require.NoError(t, err)
	in, err := s.NewInput(devices[0])
	require.NoError(t, err)
	s.BeginConfiguration()
	s.AddInput(in)
	require.NoError(t, s.CommitConfiguration())
	require.NoError(t, s.Start())
	defer s.Stop()

	t.Run("stopped by caller", func(t *testing.T) {
		out := s.NewMovieOutput()
		path := filepath.Join(t.TempDir(), "movie.mp4")
		done := make(chan error, 1)
		require.NoError(t, out.StartRecording(path, func(_ string, err error) { done <- err }))
		assert.True(t, out.IsRecording())
		assert.Error(t, out.StartRecording(path, func(string, error) {}), "output is busy")

		time.Sleep(time.Second)
		out.StopRecording()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Fatal("recording never finished")
		}
		assert.False(t, out.IsRecording())
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	})

	t.Run("maximum duration", func(t *testing.T) {
		out := s.NewMovieOutput()
		out.SetMaxDuration(500 * time.Millisecond)
		done := make(chan error, 1)
		require.NoError(t, out.StartRecording(filepath.Join(t.TempDir(), "short.mp4"), func(_ string, err error) { done <- err }))
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrMaxDurationReached)
		case <-time.After(15 * time.Second):
			t.Fatal("recording did not stop at its maximum duration")
		}
	})
}

func TestShouldFire(t *testing.T) {
	frame, err := generatePlaceholderFrame(32, 32)
	require.NoError(t, err)

	assert.True(t, shouldFire(capture.FlashOn, nil))
	assert.False(t, shouldFire(capture.FlashOff, frame))
	assert.False(t, shouldFire(capture.FlashAuto, []byte("not a jpeg")))
}
