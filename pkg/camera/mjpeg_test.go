package camera

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeJPEG(body string) []byte {
	return append(append([]byte{0xFF, 0xD8}, body...), 0xFF, 0xD9)
}

func collect(t *testing.T, stream []byte, wrap func([]byte) *bytes.Reader) [][]byte {
	t.Helper()
	var frames [][]byte
	store := func(f []byte) { frames = append(frames, bytes.Clone(f)) }
	require.NoError(t, pumpFrames(wrap(stream), store, slog.Default()))
	return frames
}

func TestPumpFrames(t *testing.T) {
	a, b, c := fakeJPEG("first"), fakeJPEG("second frame"), fakeJPEG(string(bytes.Repeat([]byte{0x42}, 9000)))
	var stream []byte
	stream = append(stream, "garbage before"...)
	stream = append(stream, a...)
	stream = append(stream, b...)
	stream = append(stream, 0x00, 0x01)
	stream = append(stream, c...)
	stream = append(stream, 0xFF, 0xD8, 0x01) // truncated

	frames := collect(t, stream, bytes.NewReader)
	require.Len(t, frames, 3)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
	assert.Equal(t, c, frames[2])
}

func TestPumpFramesOneByteReads(t *testing.T) {
	a, b := fakeJPEG("x"), fakeJPEG("yz")
	stream := append(append([]byte{0xFF}, a...), b...)

	var frames [][]byte
	store := func(f []byte) { frames = append(frames, bytes.Clone(f)) }
	require.NoError(t, pumpFrames(iotest.OneByteReader(bytes.NewReader(stream)), store, slog.Default()))
	assert.Equal(t, [][]byte{a, b}, frames)
}

func TestPumpFramesReadError(t *testing.T) {
	boom := errors.New("boom")
	err := pumpFrames(iotest.ErrReader(boom), func([]byte) {}, slog.Default())
	assert.ErrorIs(t, err, boom)
}

func TestFrameBuffer(t *testing.T) {
	b := newFrameBuffer(50 * time.Millisecond)
	_, err := b.LatestFrame()
	assert.ErrorIs(t, err, errNoFrame)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, b.waitReady(ctx))

	src := fakeJPEG("frame")
	b.store(src)
	require.NoError(t, b.waitReady(context.Background()))
	got, err := b.LatestFrame()
	require.NoError(t, err)
	assert.Equal(t, src, got)

	got[2] = 'X'
	again, _ := b.LatestFrame()
	assert.Equal(t, src, again, "callers get a copy")

	time.Sleep(80 * time.Millisecond)
	_, err = b.LatestFrame()
	assert.ErrorIs(t, err, errStaleFrame)
}
