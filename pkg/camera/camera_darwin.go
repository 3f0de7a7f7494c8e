//go:build darwin

package camera

import (
	"context"
	"os/exec"

	"github.com/wachiwi/capturekit/pkg/capture"
)

// Listing devices runs ffmpeg, so results are cached for DiscoveryTTL.
const discoveryCacheable = true

func (h *Host) discover(media capture.MediaType) ([]deviceInfo, error) {
	// ffmpeg exits non-zero after listing; the listing is on stderr.
	out, _ := exec.Command(h.cfg.FFmpegPath,
		"-hide_banner",
		"-f", "avfoundation",
		"-list_devices", "true",
		"-i", "",
	).CombinedOutput()

	var infos []deviceInfo
	for _, info := range parseAVFoundationList(string(out)) {
		if info.media == media {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// AuthorizationStatus is not determined until RequestAccess has probed the
// device; macOS shows its prompt on first access.
func (h *Host) AuthorizationStatus(media capture.MediaType) capture.AuthorizationStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.decided[media]; ok {
		return s
	}
	return capture.AuthNotDetermined
}

// RequestAccess opens the default device once through ffmpeg, which
// triggers the system prompt.
func (h *Host) RequestAccess(ctx context.Context, media capture.MediaType) (bool, error) {
	input := "0"
	if media == capture.MediaAudio {
		input = ":0"
	}
	cmd := exec.CommandContext(ctx, h.cfg.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "avfoundation",
		"-i", input,
		"-t", "0.1",
		"-f", "null",
		"-",
	)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	status := capture.AuthAuthorized
	if err != nil {
		h.logger.Warn("Device access refused", "media", media, "error", err, "output", string(out))
		status = capture.AuthDenied
	}
	h.mu.Lock()
	h.decided[media] = status
	h.mu.Unlock()
	return status == capture.AuthAuthorized, nil
}
