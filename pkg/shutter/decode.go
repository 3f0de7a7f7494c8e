// Package shutter plays the camera shutter sound.
package shutter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

const (
	sampleRate   = 44100
	channelCount = 2
)

// Decode turns a .wav or .mp3 file into 16-bit little-endian stereo PCM at
// 44.1 kHz.
func Decode(filename string, data []byte) ([]byte, error) {
	var (
		pcm      []byte
		rate     int
		channels int
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		format, err := wav.NewReader(bytes.NewReader(data)).Format()
		if err != nil {
			return nil, fmt.Errorf("failed to get wav format: %w", err)
		}
		if format.BitsPerSample != 16 {
			return nil, fmt.Errorf("unsupported wav sample size %d", format.BitsPerSample)
		}
		pcm, err = io.ReadAll(wav.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav data: %w", err)
		}
		rate = int(format.SampleRate)
		channels = int(format.NumChannels)

	case ".mp3":
		decoder, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
		}
		pcm, err = io.ReadAll(decoder)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mp3 data: %w", err)
		}
		rate = decoder.SampleRate()
		channels = 2

	default:
		return nil, fmt.Errorf("unsupported sound file %q", filename)
	}

	if rate != sampleRate || channels != channelCount {
		pcm = convertAudio(pcm, rate, channels, sampleRate, channelCount)
	}
	return pcm, nil
}

// Click synthesizes a short decaying click, used when no sound file is
// configured.
func Click() []byte {
	const (
		duration = 0.04
		freq     = 2200.0
	)
	n := int(sampleRate * duration)
	pcm := make([]byte, n*channelCount*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		env := math.Exp(-t * 120)
		v := int16(math.Sin(2*math.Pi*freq*t) * env * 0.6 * math.MaxInt16)
		for c := 0; c < channelCount; c++ {
			binary.LittleEndian.PutUint16(pcm[(i*channelCount+c)*2:], uint16(v))
		}
	}
	return pcm
}

// convertAudio converts 16-bit PCM between sample rates and from mono to
// stereo using linear interpolation.
func convertAudio(pcmData []byte, fromRate, fromChannels, toRate, toChannels int) []byte {
	sampleCount := len(pcmData) / 2
	samples := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*2 : i*2+2]))
	}

	stereo := samples
	if fromChannels == 1 && toChannels == 2 {
		stereo = make([]int16, sampleCount*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
	}

	resampled := stereo
	if fromRate != toRate && len(stereo) >= toChannels {
		// Interpolate per frame so channels stay interleaved.
		frames := len(stereo) / toChannels
		ratio := float64(toRate) / float64(fromRate)
		newFrames := int(float64(frames) * ratio)
		resampled = make([]int16, newFrames*toChannels)
		for i := 0; i < newFrames; i++ {
			srcPos := float64(i) / ratio
			srcIdx := int(srcPos)
			frac := srcPos - float64(srcIdx)
			for c := 0; c < toChannels; c++ {
				if srcIdx >= frames-1 {
					resampled[i*toChannels+c] = stereo[(frames-1)*toChannels+c]
					continue
				}
				s1 := float64(stereo[srcIdx*toChannels+c])
				s2 := float64(stereo[(srcIdx+1)*toChannels+c])
				resampled[i*toChannels+c] = int16(s1 + (s2-s1)*frac)
			}
		}
	}

	result := make([]byte, len(resampled)*2)
	for i, s := range resampled {
		binary.LittleEndian.PutUint16(result[i*2:i*2+2], uint16(s))
	}
	return result
}
