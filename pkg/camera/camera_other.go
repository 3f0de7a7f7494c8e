//go:build !linux && !darwin

package camera

import (
	"context"

	"github.com/wachiwi/capturekit/pkg/capture"
)

const discoveryCacheable = false

// Only the placeholder camera exists on other platforms.
func (h *Host) discover(media capture.MediaType) ([]deviceInfo, error) {
	return nil, nil
}

func (h *Host) AuthorizationStatus(media capture.MediaType) capture.AuthorizationStatus {
	return capture.AuthAuthorized
}

func (h *Host) RequestAccess(ctx context.Context, media capture.MediaType) (bool, error) {
	return true, nil
}
