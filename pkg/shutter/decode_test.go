package shutter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monoWAV builds a 16-bit mono PCM WAV file.
func monoWAV(rate uint32, samples []int16) []byte {
	dataSize := uint32(len(samples) * 2)
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, 36+dataSize)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, rate)
	buf = binary.LittleEndian.AppendUint32(buf, rate*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, dataSize)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func TestDecodeWAV(t *testing.T) {
	t.Run("native format converted to stereo", func(t *testing.T) {
		pcm, err := Decode("click.WAV", monoWAV(44100, []int16{100, -200, 300, -400}))
		require.NoError(t, err)
		require.Len(t, pcm, 4*2*2)
		assert.Equal(t, int16(100), sampleAt(pcm, 0))
		assert.Equal(t, int16(100), sampleAt(pcm, 1))
		assert.Equal(t, int16(-400), sampleAt(pcm, 7))
	})

	t.Run("resampled", func(t *testing.T) {
		pcm, err := Decode("click.wav", monoWAV(22050, []int16{0, 1000, 2000, 3000}))
		require.NoError(t, err)
		// 4 frames at 22.05 kHz become 8 stereo frames at 44.1 kHz.
		require.Len(t, pcm, 8*2*2)
		assert.Equal(t, int16(500), sampleAt(pcm, 2), "interpolated left")
		assert.Equal(t, int16(500), sampleAt(pcm, 3), "interpolated right")
	})
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode("click.ogg", []byte("OggS"))
	assert.Error(t, err)

	_, err = Decode("click.wav", []byte("not a wav"))
	assert.Error(t, err)
}

func TestClick(t *testing.T) {
	pcm := Click()
	require.NotEmpty(t, pcm)
	assert.Zero(t, len(pcm)%4, "whole stereo frames")

	var peak int16
	for i := 0; i < len(pcm)/2; i++ {
		peak = max(peak, sampleAt(pcm, i))
	}
	assert.Greater(t, peak, int16(1000))
	assert.Equal(t, sampleAt(pcm, 10), sampleAt(pcm, 11), "both channels carry the click")
}
