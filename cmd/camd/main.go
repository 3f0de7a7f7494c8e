package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/wachiwi/capturekit/cmd/camd/handlers"
	"github.com/wachiwi/capturekit/pkg/camera"
	"github.com/wachiwi/capturekit/pkg/capture"
	"github.com/wachiwi/capturekit/pkg/config"
	"github.com/wachiwi/capturekit/pkg/gallery"
	"github.com/wachiwi/capturekit/pkg/logger"
	"github.com/wachiwi/capturekit/pkg/shutter"
	"github.com/wachiwi/capturekit/pkg/telemetry"
)

func main() {
	var (
		configPath  string
		listen      string
		placeholder bool
	)
	flag.StringVar(&configPath, "config", os.Getenv("CAMD_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&listen, "listen", "", "Listen address, overrides the config")
	flag.BoolVar(&placeholder, "placeholder", false, "Add a camera producing generated frames")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if placeholder {
		cfg.Camera.Placeholder = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", "error", err)
	}
	level, _ := cfg.Level()
	log := logger.Setup(level)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		logger.Fatal("camd stopped", "error", err)
	}
	log.Info("camd stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.OtelEndpoint != "" {
		shutdown, err := telemetry.Setup(ctx, "camd", cfg.OtelEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	host, err := camera.NewHost(cfg.CameraConfig(), log)
	if err != nil {
		return err
	}
	defer host.Close()

	ctrl, err := capture.NewDefault(cfg.CaptureOptions(log), host, host.NewSession(), cfg.MaxMovieDuration, cfg.MinFreeDiskSpace)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	g, err := gallery.Open(cfg.GalleryDir, cfg.Retention, log)
	if err != nil {
		return err
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	secret, err := sessionSecret(cfg.SessionSecret)
	if err != nil {
		return err
	}

	preview := &handlers.Preview{}
	galleryHandler := &handlers.GalleryHandler{Gallery: g, Templates: tmpl}
	cameraHandler := &handlers.CameraHandler{
		Cam:           ctrl,
		Preview:       preview,
		Gallery:       galleryHandler,
		FrameInterval: time.Second / time.Duration(cfg.Camera.FPS),
	}
	galleryHandler.Status = cameraHandler.StatusSnapshot

	archive := ctrl.Subscribe(galleryHandler.OnEvent)
	defer archive.Unsubscribe()

	if cfg.Shutter {
		player, err := shutter.New(cfg.ShutterSound, log)
		if err != nil {
			log.Warn("Shutter sound disabled", "error", err)
		} else {
			sub := ctrl.Subscribe(func(e capture.Event) {
				if e.Type == capture.EventPhotoTaken {
					player.Play()
				}
			})
			defer sub.Unsubscribe()
		}
	}

	ctrl.ConnectCameraToView(preview, func(ok bool, err error) {
		if !ok {
			log.Error("Camera not connected", "state", ctrl.SetupState(), "error", err)
			return
		}
		log.Info("Camera connected", "position", ctrl.CameraPosition(), "quality", ctrl.CaptureQuality())
	})

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := host.Watch(ctx, ctrl.NotifyDevicesChanged); err != nil {
			log.Warn("Hotplug detection unavailable", "error", err)
		}
		return nil
	})

	if cfg.Timelapse != "" {
		c, err := newTimelapse(cfg, cameraHandler, log)
		if err != nil {
			return err
		}
		c.Start()
		eg.Go(func() error {
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: newRouter(routes{
			auth:    &handlers.AuthHandler{User: cfg.User, Password: cfg.Password, Templates: tmpl},
			camera:  cameraHandler,
			gallery: galleryHandler,
			events:  &handlers.EventsHandler{Cam: ctrl},
			secret:  secret,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	eg.Go(func() error {
		log.Info("Server is running", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return eg.Wait()
}

// newTimelapse schedules a photo on the configured cron spec. Runs that
// overlap a slow capture are skipped.
func newTimelapse(cfg config.Config, cam *handlers.CameraHandler, log *slog.Logger) (*cron.Cron, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cronLog := &logger.CronLogger{Logger: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)
	_, err = c.AddFunc(cfg.Timelapse, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		item, err := cam.Snap(ctx)
		if err != nil {
			log.Warn("Timelapse photo failed", "error", err)
			return
		}
		log.Info("Timelapse photo", "file", item.File)
	})
	if err != nil {
		return nil, fmt.Errorf("timelapse: %w", err)
	}
	return c, nil
}

// sessionSecret returns the configured cookie key, or a random one that
// logs everyone out on restart.
func sessionSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}
	return key, nil
}
