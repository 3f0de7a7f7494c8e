//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wachiwi/capturekit/pkg/capture"
	"golang.org/x/sys/unix"
)

// Scanning /dev is cheap; every call sees the current hardware.
const discoveryCacheable = false

func (h *Host) discover(media capture.MediaType) ([]deviceInfo, error) {
	if media == capture.MediaAudio {
		return h.discoverALSA()
	}
	infos, err := h.discoverV4L2()
	if err != nil {
		return nil, err
	}
	if h.cfg.Libcamera {
		if name, err := rpicamCommand(); err == nil {
			cam := deviceInfo{
				id:    "libcamera0",
				name:  "Raspberry Pi Camera (" + name + ")",
				media: capture.MediaVideo,
				kind:  sourceLibcamera,
			}
			infos = append([]deviceInfo{cam}, infos...)
		}
	}
	return infos, nil
}

// discoverV4L2 lists /dev/video* nodes. Only index 0 of each physical
// camera captures frames; the other nodes carry metadata.
func (h *Host) discoverV4L2() ([]deviceInfo, error) {
	nodes, err := filepath.Glob(filepath.Join(h.cfg.DevRoot, "video*"))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(nodes, compareNodes)

	var infos []deviceInfo
	for _, node := range nodes {
		base := filepath.Base(node)
		sys := filepath.Join(h.cfg.SysRoot, "class", "video4linux", base)
		if index, err := readTrimmed(filepath.Join(sys, "index")); err == nil && index != "0" {
			continue
		}
		name, err := readTrimmed(filepath.Join(sys, "name"))
		if err != nil || name == "" {
			name = base
		}
		infos = append(infos, deviceInfo{
			id:    base,
			name:  name,
			media: capture.MediaVideo,
			kind:  sourceV4L2,
			path:  node,
		})
	}
	return infos, nil
}

// discoverALSA lists capture PCMs (/dev/snd/pcmC<card>D<device>c).
func (h *Host) discoverALSA() ([]deviceInfo, error) {
	nodes, err := filepath.Glob(filepath.Join(h.cfg.DevRoot, "snd", "pcmC*D*c"))
	if err != nil {
		return nil, err
	}
	slices.Sort(nodes)

	var infos []deviceInfo
	for _, node := range nodes {
		var card, dev int
		if _, err := fmt.Sscanf(filepath.Base(node), "pcmC%dD%dc", &card, &dev); err != nil {
			continue
		}
		hw := fmt.Sprintf("hw:%d,%d", card, dev)
		name, err := readTrimmed(filepath.Join(h.cfg.ProcRoot, "asound", fmt.Sprintf("card%d", card), "id"))
		if err != nil || name == "" {
			name = hw
		}
		infos = append(infos, deviceInfo{
			id:    hw,
			name:  name,
			media: capture.MediaAudio,
			kind:  sourceALSA,
			path:  hw,
		})
	}
	return infos, nil
}

// compareNodes orders video2 before video10.
func compareNodes(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// deviceNodes lists the device files a media type is read from.
func (h *Host) deviceNodes(media capture.MediaType) []string {
	infos, err := h.discover(media)
	if err != nil {
		return nil
	}
	var nodes []string
	for _, info := range infos {
		switch info.kind {
		case sourceV4L2:
			nodes = append(nodes, info.path)
		case sourceALSA:
			var card, dev int
			if _, err := fmt.Sscanf(info.path, "hw:%d,%d", &card, &dev); err == nil {
				nodes = append(nodes, filepath.Join(h.cfg.DevRoot, "snd", fmt.Sprintf("pcmC%dD%dc", card, dev)))
			}
		}
	}
	return nodes
}

// AuthorizationStatus checks file access on the device nodes. Linux has no
// prompt: access comes from group membership (video, audio).
func (h *Host) AuthorizationStatus(media capture.MediaType) capture.AuthorizationStatus {
	nodes := h.deviceNodes(media)
	if len(nodes) == 0 {
		return capture.AuthAuthorized
	}
	status := capture.AuthDenied
	for _, node := range nodes {
		err := unix.Access(node, unix.R_OK|unix.W_OK)
		switch {
		case err == nil:
			return capture.AuthAuthorized
		case errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
			status = capture.AuthRestricted
		}
	}
	return status
}

// RequestAccess reports the current status; there is nothing to prompt.
func (h *Host) RequestAccess(ctx context.Context, media capture.MediaType) (bool, error) {
	status := h.AuthorizationStatus(media)
	if status != capture.AuthAuthorized {
		h.logger.Warn("No access to capture devices; check video/audio group membership", "media", media, "status", status)
	}
	return status == capture.AuthAuthorized, nil
}
