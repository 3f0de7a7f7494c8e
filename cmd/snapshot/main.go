package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wachiwi/capturekit/pkg/camera"
	"github.com/wachiwi/capturekit/pkg/capture"
	"github.com/wachiwi/capturekit/pkg/config"
	"github.com/wachiwi/capturekit/pkg/logger"
)

func main() {
	var (
		configPath  string
		outputFile  string
		position    string
		quality     string
		flash       string
		placeholder bool
		timeout     time.Duration
	)
	flag.StringVar(&configPath, "config", os.Getenv("CAMD_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&outputFile, "output", "snapshot.jpg", "Output file path")
	flag.StringVar(&position, "position", "", "Camera position (back or front)")
	flag.StringVar(&quality, "quality", "photo", "Capture quality (high, medium, low, photo)")
	flag.StringVar(&flash, "flash", "", "Flash mode (off, on, auto)")
	flag.BoolVar(&placeholder, "placeholder", false, "Use generated frames when no camera is present")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	cfg.OutputMode = "still"
	cfg.Quality = quality
	if position != "" {
		cfg.Position = position
	}
	if flash != "" {
		cfg.FlashMode = flash
	}
	if placeholder {
		cfg.Camera.Placeholder = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid options", "error", err)
	}
	level, _ := cfg.Level()
	log := logger.Setup(level)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	photo, err := snapshot(ctx, cfg.CameraConfig(), cfg.CaptureOptions(log), log)
	if err != nil {
		logger.Fatal("Failed to take photo", "error", err, "kind", capture.KindOf(err))
	}
	if err := os.WriteFile(outputFile, photo.Data, 0644); err != nil {
		logger.Fatal("Failed to write photo to file", "error", err)
	}
	b := photo.Image.Bounds()
	slog.Info("Successfully took photo", "file", outputFile, "width", b.Dx(), "height", b.Dy(), "position", photo.Position)
}

// snapshot connects a still-only controller and takes one photo.
func snapshot(ctx context.Context, camCfg camera.Config, opts capture.Options, log *slog.Logger) (*capture.Photo, error) {
	host, err := camera.NewHost(camCfg, log)
	if err != nil {
		return nil, err
	}

	ctrl, err := capture.NewDefault(opts, host, host.NewSession(), 0, 0)
	if err != nil {
		_ = host.Close()
		return nil, err
	}
	defer shutdown(ctx, log, func() {
		ctrl.Close()
		_ = host.Close()
	})

	connected := make(chan error, 1)
	ctrl.ConnectCameraToView(nil, func(_ bool, err error) { connected <- err })
	select {
	case err := <-connected:
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	type result struct {
		photo *capture.Photo
		err   error
	}
	taken := make(chan result, 1)
	ctrl.TakePhoto(func(p *capture.Photo, err error) { taken <- result{p, err} })
	select {
	case r := <-taken:
		return r.photo, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown runs release but stops waiting once ctx is done. Close waits for
// queued camera work, and a connect stuck starting the camera would hold the
// process past -timeout.
func shutdown(ctx context.Context, log *slog.Logger, release func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		release()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("Camera still shutting down, not waiting", "error", ctx.Err())
	}
}
