package camera

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/wachiwi/capturekit/pkg/capture"
)

var avDeviceLine = regexp.MustCompile(`\] \[(\d+)\] (.+)$`)

// parseAVFoundationList reads the device listing ffmpeg prints for
// "-f avfoundation -list_devices true -i ''". Screen capture entries are
// skipped.
func parseAVFoundationList(out string) []deviceInfo {
	var (
		infos  []deviceInfo
		media  capture.MediaType
		inList bool
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "AVFoundation video devices:"):
			media, inList = capture.MediaVideo, true
			continue
		case strings.Contains(line, "AVFoundation audio devices:"):
			media, inList = capture.MediaAudio, true
			continue
		}
		if !inList {
			continue
		}
		m := avDeviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		if strings.HasPrefix(name, "Capture screen") {
			continue
		}
		prefix := "avf-video-"
		if media == capture.MediaAudio {
			prefix = "avf-audio-"
		}
		infos = append(infos, deviceInfo{
			id:    prefix + m[1],
			name:  name,
			media: media,
			kind:  sourceAVFoundation,
			path:  m[1],
		})
	}
	return infos
}
