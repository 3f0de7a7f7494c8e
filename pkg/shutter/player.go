package shutter

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player plays one preloaded sound. Overlapping Play calls are dropped.
type Player struct {
	ctx    *oto.Context
	pcm    []byte
	logger *slog.Logger

	mu      sync.Mutex
	playing bool
}

// New opens the audio device and loads soundFile, or the synthesized click
// when soundFile is empty.
func New(soundFile string, logger *slog.Logger) (*Player, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pcm := Click()
	if soundFile != "" {
		data, err := os.ReadFile(soundFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sound file: %w", err)
		}
		if pcm, err = Decode(soundFile, data); err != nil {
			return nil, err
		}
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{ctx: otoCtx, pcm: pcm, logger: logger.With("component", "shutter")}, nil
}

// Play starts the sound and returns immediately.
func (p *Player) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
		}()
		player := p.ctx.NewPlayer(bytes.NewReader(p.pcm))
		defer player.Close()
		player.Play()
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
	}()
}
