//go:build !linux && !darwin

package camera

import "errors"

func freeSpace(dir string) (int64, error) {
	return 0, errors.New("free space check not supported on this platform")
}
