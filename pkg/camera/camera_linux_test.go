//go:build linux

package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wachiwi/capturekit/pkg/capture"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLinuxDiscovery(t *testing.T) {
	root := t.TempDir()
	dev := filepath.Join(root, "dev")
	sys := filepath.Join(root, "sys")
	proc := filepath.Join(root, "proc")

	writeFile(t, filepath.Join(dev, "video0"), "")
	writeFile(t, filepath.Join(dev, "video1"), "")
	writeFile(t, filepath.Join(dev, "video10"), "")
	writeFile(t, filepath.Join(dev, "video2"), "")
	writeFile(t, filepath.Join(sys, "class/video4linux/video0/index"), "0\n")
	writeFile(t, filepath.Join(sys, "class/video4linux/video0/name"), "USB Camera\n")
	writeFile(t, filepath.Join(sys, "class/video4linux/video1/index"), "1\n")
	writeFile(t, filepath.Join(sys, "class/video4linux/video2/index"), "0\n")
	writeFile(t, filepath.Join(sys, "class/video4linux/video2/name"), "Front Camera\n")
	writeFile(t, filepath.Join(dev, "snd/pcmC1D0c"), "")
	writeFile(t, filepath.Join(dev, "snd/pcmC1D0p"), "")
	writeFile(t, filepath.Join(proc, "asound/card1/id"), "Mic\n")

	h, err := NewHost(Config{
		DevRoot:   dev,
		SysRoot:   sys,
		ProcRoot:  proc,
		Positions: map[string]capture.Position{"video10": capture.PositionFront},
	}, nil)
	require.NoError(t, err)

	videos, err := h.Devices(capture.MediaVideo)
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "video0", videos[0].ID())
	assert.Equal(t, "USB Camera", videos[0].Name())
	assert.Equal(t, capture.PositionBack, videos[0].Position())
	assert.Equal(t, "video2", videos[1].ID())
	assert.Equal(t, capture.PositionUnspecified, videos[1].Position())
	assert.Equal(t, "video10", videos[2].ID())
	assert.Equal(t, "video10", videos[2].Name())
	assert.Equal(t, capture.PositionFront, videos[2].Position())

	mics, err := h.Devices(capture.MediaAudio)
	require.NoError(t, err)
	require.Len(t, mics, 1)
	assert.Equal(t, "hw:1,0", mics[0].ID())
	assert.Equal(t, "Mic", mics[0].Name())
	assert.Equal(t, []string{"-f", "alsa", "-i", "hw:1,0"}, mics[0].(*Device).audioInputArgs())

	assert.Equal(t, capture.AuthAuthorized, h.AuthorizationStatus(capture.MediaVideo))
	granted, err := h.RequestAccess(t.Context(), capture.MediaAudio)
	require.NoError(t, err)
	assert.True(t, granted)

	// Unplugging is seen on the next call.
	require.NoError(t, os.Remove(filepath.Join(dev, "video2")))
	videos, err = h.Devices(capture.MediaVideo)
	require.NoError(t, err)
	assert.Len(t, videos, 2)
}

func TestWatchReportsHotplug(t *testing.T) {
	dev := t.TempDir()
	h, err := NewHost(Config{DevRoot: dev}, nil)
	require.NoError(t, err)

	changed := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- h.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dev, "ttyS0"), "")
	writeFile(t, filepath.Join(dev, "video0"), "")
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("hotplug not reported")
	}
}
