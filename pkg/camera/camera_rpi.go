package camera

import (
	"errors"
	"fmt"
	"os/exec"
)

// rpicamCommand finds the Raspberry Pi camera app: rpicam-vid on current
// releases, libcamera-vid on older ones.
func rpicamCommand() (string, error) {
	for _, name := range []string{"rpicam-vid", "libcamera-vid"} {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", errors.New("neither rpicam-vid nor libcamera-vid found")
}

// rpicamArgs streams MJPEG to stdout indefinitely. The awb and metering
// settings suit the Camera Module 3.
func rpicamArgs(res resolution, fps int) []string {
	return []string{
		"--width", fmt.Sprint(res.width),
		"--height", fmt.Sprint(res.height),
		"--timeout", "0",
		"--nopreview",
		"--codec", "mjpeg",
		"--output", "-",
		"--framerate", fmt.Sprint(fps),
		"--awb", "auto",
		"--metering", "average",
	}
}
