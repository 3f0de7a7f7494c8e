package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const hotplugSettle = 500 * time.Millisecond

// Watch calls onChange after capture device nodes appear or disappear under
// DevRoot. Bursts of events are coalesced. It blocks until ctx is done.
func (h *Host) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(h.cfg.DevRoot); err != nil {
		return fmt.Errorf("failed to watch %s: %w", h.cfg.DevRoot, err)
	}
	snd := filepath.Join(h.cfg.DevRoot, "snd")
	if _, err := os.Stat(snd); err == nil {
		if err := w.Add(snd); err != nil {
			h.logger.Warn("Not watching sound devices", "path", snd, "error", err)
		}
	}
	h.logger.Info("Watching for camera hotplug", "path", h.cfg.DevRoot)

	settle := time.NewTimer(hotplugSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			base := filepath.Base(ev.Name)
			if base == "snd" && ev.Has(fsnotify.Create) {
				_ = w.Add(ev.Name)
			}
			if !isCaptureNode(base) && base != "snd" && !strings.HasPrefix(base, "media") {
				continue
			}
			h.logger.Debug("Device node changed", "path", ev.Name, "op", ev.Op.String())
			h.invalidate()
			settle.Reset(hotplugSettle)
		case <-settle.C:
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("Watcher error", "error", err)
		}
	}
}
