package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wachiwi/capturekit/pkg/capture"
	"github.com/wachiwi/capturekit/pkg/gallery"
)

var tracer = otel.Tracer("github.com/wachiwi/capturekit/cmd/camd")

// Controller is the part of capture.Controller the handlers drive.
type Controller interface {
	SetupState() capture.SetupState
	AuthorizationStatus() capture.AuthorizationStatus
	CameraPosition() capture.Position
	CaptureQuality() capture.Quality
	FlashMode() capture.FlashMode
	OutputMode() capture.OutputMode
	SupportsFlash() bool
	SupportsFrontCamera() bool
	IsRecording() bool
	Subscribe(fn func(capture.Event)) *capture.Subscription

	ConnectCameraToView(view capture.PreviewSurface, done func(ok bool, err error))
	SetCameraPosition(pos capture.Position, done func(error)) error
	SetFlashMode(mode capture.FlashMode, done func(error)) error
	SetCaptureQuality(q capture.Quality, done func(error)) error
	TakePhoto(done func(*capture.Photo, error))
	StartVideoRecording(done func(path string, err error))
	StopVideoRecording(done func(path string, err error))
	StartCaptureSession()
	StopCaptureSession()
}

// Preview is the surface the controller attaches its running session to.
type Preview struct {
	mu  sync.RWMutex
	src capture.FrameSource
}

func (p *Preview) AttachPreview(src capture.FrameSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = src
}

// Frame returns the latest preview frame, or nil when nothing is attached or
// no frame is ready.
func (p *Preview) Frame() []byte {
	p.mu.RLock()
	src := p.src
	p.mu.RUnlock()
	if src == nil {
		return nil
	}
	frame, err := src.LatestFrame()
	if err != nil {
		return nil
	}
	return frame
}

func (p *Preview) Attached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.src != nil
}

type CameraHandler struct {
	Cam     Controller
	Preview *Preview
	Gallery *GalleryHandler
	// FrameInterval paces /stream.
	FrameInterval time.Duration
}

type Status struct {
	State               string `json:"state"`
	Authorization       string `json:"authorization"`
	Position            string `json:"position"`
	Quality             string `json:"quality"`
	FlashMode           string `json:"flash_mode"`
	OutputMode          string `json:"output_mode"`
	SupportsFlash       bool   `json:"supports_flash"`
	SupportsFrontCamera bool   `json:"supports_front_camera"`
	Recording           bool   `json:"recording"`
}

func (h *CameraHandler) status() Status {
	return Status{
		State:               h.Cam.SetupState().String(),
		Authorization:       h.Cam.AuthorizationStatus().String(),
		Position:            h.Cam.CameraPosition().String(),
		Quality:             h.Cam.CaptureQuality().String(),
		FlashMode:           h.Cam.FlashMode().String(),
		OutputMode:          h.Cam.OutputMode().String(),
		SupportsFlash:       h.Cam.SupportsFlash(),
		SupportsFrontCamera: h.Cam.SupportsFrontCamera(),
		Recording:           h.Cam.IsRecording(),
	}
}

// StatusSnapshot reports the controller's current properties.
func (h *CameraHandler) StatusSnapshot() Status { return h.status() }

func (h *CameraHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

// Stream serves the preview as multipart MJPEG.
func (h *CameraHandler) Stream(c *gin.Context) {
	if !h.Preview.Attached() {
		c.String(http.StatusServiceUnavailable, "Camera not available")
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")

	w := c.Writer
	interval := h.FrameInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			frame := h.Preview.Frame()
			if frame == nil {
				continue
			}
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			if _, err := w.Write(frame); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			w.Flush()
		}
	}
}

// Snapshot serves the current preview frame without capturing a photo.
func (h *CameraHandler) Snapshot(c *gin.Context) {
	frame := h.Preview.Frame()
	if frame == nil {
		c.String(http.StatusServiceUnavailable, "No frame available")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (h *CameraHandler) Connect(c *gin.Context) {
	_, err := await(c.Request.Context(), func(done func(bool, error)) {
		h.Cam.ConnectCameraToView(h.Preview, done)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.status())
}

func (h *CameraHandler) StartSession(c *gin.Context) {
	h.Cam.StartCaptureSession()
	c.JSON(http.StatusAccepted, h.status())
}

func (h *CameraHandler) StopSession(c *gin.Context) {
	h.Cam.StopCaptureSession()
	c.JSON(http.StatusAccepted, h.status())
}

type positionRequest struct {
	Position string `json:"position" binding:"required"`
}

func (h *CameraHandler) SetPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos, ok := capture.ParsePosition(req.Position)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown position " + req.Position})
		return
	}
	h.apply(c, func(done func(error)) error { return h.Cam.SetCameraPosition(pos, done) })
}

type flashRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *CameraHandler) SetFlash(c *gin.Context) {
	var req flashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, ok := capture.ParseFlashMode(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown flash mode " + req.Mode})
		return
	}
	h.apply(c, func(done func(error)) error { return h.Cam.SetFlashMode(mode, done) })
}

type qualityRequest struct {
	Quality string `json:"quality" binding:"required"`
}

func (h *CameraHandler) SetQuality(c *gin.Context) {
	var req qualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, ok := capture.ParseQuality(req.Quality)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown quality " + req.Quality})
		return
	}
	h.apply(c, func(done func(error)) error { return h.Cam.SetCaptureQuality(q, done) })
}

// apply runs a setter that may fail immediately or later on done.
func (h *CameraHandler) apply(c *gin.Context, set func(done func(error)) error) {
	_, err := await(c.Request.Context(), func(done func(struct{}, error)) {
		if err := set(func(err error) { done(struct{}{}, err) }); err != nil {
			done(struct{}{}, err)
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.status())
}

func (h *CameraHandler) TakePhoto(c *gin.Context) {
	item, err := h.Snap(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Snap takes one photo and stores it in the gallery.
func (h *CameraHandler) Snap(ctx context.Context) (gallery.Item, error) {
	ctx, span := tracer.Start(ctx, "camd.take_photo")
	defer span.End()

	photo, err := await(ctx, h.Cam.TakePhoto)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
		return gallery.Item{}, err
	}
	span.SetAttributes(attribute.Int("photo.bytes", len(photo.Data)))
	item, err := h.Gallery.StorePhoto(ctx, photo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return gallery.Item{}, err
	}
	return item, nil
}

func (h *CameraHandler) StartRecording(c *gin.Context) {
	path, err := await(c.Request.Context(), h.Cam.StartVideoRecording)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recording": true, "path": path})
}

// StopRecording returns once the movie is finished and archived.
func (h *CameraHandler) StopRecording(c *gin.Context) {
	path, err := await(c.Request.Context(), h.Cam.StopVideoRecording)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": false, "path": path})
}

// await starts an operation with a completion callback and waits for it or
// for ctx.
func await[T any](ctx context.Context, start func(done func(T, error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	start(func(v T, err error) {
		select {
		case ch <- result{v, err}:
		default:
		}
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, capture.ErrNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	}
	switch capture.KindOf(err) {
	case capture.KindAuthorization:
		return http.StatusForbidden
	case capture.KindRuntime:
		return http.StatusConflict
	case capture.KindSetup:
		if !errors.Is(err, capture.ErrImageCaptureFailed) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": capture.KindOf(err).String()})
}
