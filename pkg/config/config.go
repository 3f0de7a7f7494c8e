// Package config loads camd settings: defaults, then an optional YAML file,
// then CAMD_* environment variables. Command-line flags are applied by the
// caller on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warthog618/go-gpiocdev/device/rpi"
	"gopkg.in/yaml.v3"

	"github.com/wachiwi/capturekit/pkg/camera"
	"github.com/wachiwi/capturekit/pkg/capture"
)

type Config struct {
	Listen        string `yaml:"listen"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SessionSecret string `yaml:"session_secret"`
	LogLevel      string `yaml:"log_level"`
	OtelEndpoint  string `yaml:"otel_endpoint"`

	OutputMode       string        `yaml:"output_mode"`
	Position         string        `yaml:"position"`
	Quality          string        `yaml:"quality"`
	FlashMode        string        `yaml:"flash_mode"`
	MoviePath        string        `yaml:"movie_path"`
	MaxMovieDuration time.Duration `yaml:"max_movie_duration"`
	MinFreeDiskSpace int64         `yaml:"min_free_disk_space"`

	GalleryDir   string        `yaml:"gallery_dir"`
	Retention    time.Duration `yaml:"retention"`
	ShutterSound string        `yaml:"shutter_sound"`
	Shutter      bool          `yaml:"shutter"`
	// Timelapse is a cron spec; empty disables it.
	Timelapse string `yaml:"timelapse"`
	Timezone  string `yaml:"timezone"`

	Camera CameraConfig `yaml:"camera"`
}

type CameraConfig struct {
	Width       int               `yaml:"width"`
	Height      int               `yaml:"height"`
	FPS         int               `yaml:"fps"`
	FFmpeg      string            `yaml:"ffmpeg"`
	Placeholder bool              `yaml:"placeholder"`
	Fallback    bool              `yaml:"fallback"`
	Libcamera   bool              `yaml:"libcamera"`
	Positions   map[string]string `yaml:"positions"`
	Flash       FlashConfig       `yaml:"flash"`
}

type FlashConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
	// Pin names the line by Raspberry Pi header (J8p11) or BCM name
	// (GPIO17) and takes precedence over Line.
	Pin    string        `yaml:"pin"`
	Device string        `yaml:"device"`
	Pulse  time.Duration `yaml:"pulse"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Listen:           ":8080",
		LogLevel:         "info",
		OutputMode:       "both",
		Position:         "back",
		Quality:          "high",
		FlashMode:        "auto",
		MoviePath:        filepath.Join(os.TempDir(), "capturekit-movie.mp4"),
		MaxMovieDuration: 10 * time.Minute,
		MinFreeDiskSpace: 256 << 20,
		GalleryDir:       "./captures",
		Retention:        30 * 24 * time.Hour,
		Shutter:          true,
		Timezone:         "Local",
		Camera: CameraConfig{
			Width:    1280,
			Height:   720,
			FPS:      30,
			FFmpeg:   "ffmpeg",
			Fallback: true,
			Flash:    FlashConfig{Pulse: 200 * time.Millisecond},
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes YAML strictly; unknown keys are errors.
func (c *Config) loadFile(path string) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"CAMD_LISTEN":         &c.Listen,
		"CAMD_USER":           &c.User,
		"CAMD_PASSWORD":       &c.Password,
		"CAMD_SESSION_SECRET": &c.SessionSecret,
		"CAMD_LOG_LEVEL":      &c.LogLevel,
		"CAMD_OTEL_ENDPOINT":  &c.OtelEndpoint,
		"CAMD_OUTPUT_MODE":    &c.OutputMode,
		"CAMD_POSITION":       &c.Position,
		"CAMD_QUALITY":        &c.Quality,
		"CAMD_FLASH_MODE":     &c.FlashMode,
		"CAMD_MOVIE_PATH":     &c.MoviePath,
		"CAMD_GALLERY_DIR":    &c.GalleryDir,
		"CAMD_SHUTTER_SOUND":  &c.ShutterSound,
		"CAMD_TIMELAPSE":      &c.Timelapse,
		"CAMD_TIMEZONE":       &c.Timezone,
		"CAMD_FFMPEG":         &c.Camera.FFmpeg,
		"CAMD_FLASH_CHIP":     &c.Camera.Flash.Chip,
		"CAMD_FLASH_PIN":      &c.Camera.Flash.Pin,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	var errs []error
	bools := map[string]*bool{
		"CAMD_SHUTTER":     &c.Shutter,
		"CAMD_PLACEHOLDER": &c.Camera.Placeholder,
		"CAMD_FALLBACK":    &c.Camera.Fallback,
		"CAMD_LIBCAMERA":   &c.Camera.Libcamera,
	}
	for key, dst := range bools {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = b
		}
	}
	durations := map[string]*time.Duration{
		"CAMD_MAX_MOVIE_DURATION": &c.MaxMovieDuration,
		"CAMD_RETENTION":          &c.Retention,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}
	ints := map[string]*int{
		"CAMD_WIDTH":      &c.Camera.Width,
		"CAMD_HEIGHT":     &c.Camera.Height,
		"CAMD_FPS":        &c.Camera.FPS,
		"CAMD_FLASH_LINE": &c.Camera.Flash.Line,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = n
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, ok := capture.ParseOutputMode(c.OutputMode); !ok {
		errs = append(errs, fmt.Errorf("output_mode: unknown value %q", c.OutputMode))
	}
	if _, ok := capture.ParsePosition(c.Position); !ok {
		errs = append(errs, fmt.Errorf("position: unknown value %q", c.Position))
	}
	if _, ok := capture.ParseQuality(c.Quality); !ok {
		errs = append(errs, fmt.Errorf("quality: unknown value %q", c.Quality))
	}
	if _, ok := capture.ParseFlashMode(c.FlashMode); !ok {
		errs = append(errs, fmt.Errorf("flash_mode: unknown value %q", c.FlashMode))
	}
	for id, p := range c.Camera.Positions {
		if pos, ok := capture.ParsePosition(p); !ok || pos == capture.PositionUnspecified {
			errs = append(errs, fmt.Errorf("camera.positions.%s: unknown value %q", id, p))
		}
	}
	if c.Camera.Flash.Pin != "" {
		if _, err := rpi.Pin(c.Camera.Flash.Pin); err != nil {
			errs = append(errs, fmt.Errorf("camera.flash.pin: %w", err))
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
		errs = append(errs, errors.New("camera: width, height and fps must be positive"))
	}
	if c.MaxMovieDuration < 0 || c.Retention < 0 || c.MinFreeDiskSpace < 0 {
		errs = append(errs, errors.New("durations and sizes must not be negative"))
	}
	if c.GalleryDir == "" {
		errs = append(errs, errors.New("gallery_dir is required"))
	}
	if (c.User == "") != (c.Password == "") {
		errs = append(errs, errors.New("user and password must be set together"))
	}
	if c.Timelapse != "" {
		if _, err := cron.ParseStandard(c.Timelapse); err != nil {
			errs = append(errs, fmt.Errorf("timelapse: %w", err))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// CameraConfig converts the camera section for camera.NewHost.
func (c Config) CameraConfig() camera.Config {
	positions := make(map[string]capture.Position, len(c.Camera.Positions))
	for id, p := range c.Camera.Positions {
		if pos, ok := capture.ParsePosition(p); ok {
			positions[id] = pos
		}
	}
	line := c.Camera.Flash.Line
	if c.Camera.Flash.Pin != "" {
		if n, err := rpi.Pin(c.Camera.Flash.Pin); err == nil {
			line = n
		}
	}
	return camera.Config{
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		FPS:         c.Camera.FPS,
		FFmpegPath:  c.Camera.FFmpeg,
		Placeholder: c.Camera.Placeholder,
		Fallback:    c.Camera.Fallback,
		Libcamera:   c.Camera.Libcamera,
		Positions:   positions,
		FlashChip:   c.Camera.Flash.Chip,
		FlashLine:   line,
		FlashDevice: c.Camera.Flash.Device,
		FlashPulse:  c.Camera.Flash.Pulse,
	}
}

// CaptureOptions converts the controller settings. Call Validate first;
// unparsable values fall back to the capture package defaults.
func (c Config) CaptureOptions(logger *slog.Logger) capture.Options {
	mode, _ := capture.ParseOutputMode(c.OutputMode)
	pos, _ := capture.ParsePosition(c.Position)
	q, _ := capture.ParseQuality(c.Quality)
	flash, _ := capture.ParseFlashMode(c.FlashMode)
	return capture.Options{
		OutputMode: mode,
		Position:   pos,
		Quality:    q,
		FlashMode:  flash,
		MoviePath:  c.MoviePath,
		Logger:     logger,
	}
}
