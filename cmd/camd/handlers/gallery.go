package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wachiwi/capturekit/pkg/camera"
	"github.com/wachiwi/capturekit/pkg/capture"
	"github.com/wachiwi/capturekit/pkg/gallery"
)

var (
	storedCounter metric.Int64Counter
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/capturekit/cmd/camd")
	storedCounter, err = meter.Int64Counter("camd.captures.stored",
		metric.WithDescription("Total number of captures stored in the gallery"),
		metric.WithUnit("{files}"),
	)
	if err != nil {
		slog.Error("Failed to create gallery metrics", "error", err)
	}
}

type GalleryHandler struct {
	Gallery   *gallery.Gallery
	Templates *template.Template
	// Status feeds the index page; optional.
	Status func() Status
}

// StorePhoto writes a captured photo to the gallery.
func (h *GalleryHandler) StorePhoto(ctx context.Context, p *capture.Photo) (gallery.Item, error) {
	item, err := h.Gallery.AddPhoto(p.Data, p.Image, positionName(p.Position), p.TakenAt)
	if err != nil {
		return gallery.Item{}, err
	}
	storedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(item.Kind))))
	return item, nil
}

// OnEvent moves finished recordings into the gallery. A recording cut off
// at its maximum duration is still a complete file.
func (h *GalleryHandler) OnEvent(e capture.Event) {
	if e.Type != capture.EventRecordingFinished || e.Path == "" {
		return
	}
	if e.Err != nil && !errors.Is(e.Err, camera.ErrMaxDurationReached) {
		return
	}
	item, err := h.Gallery.AddMovie(e.Path, positionName(e.Position))
	if err != nil {
		slog.Error("Failed to archive recording", "path", e.Path, "recording", e.RecordingID, "error", err)
		return
	}
	storedCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(item.Kind))))
}

func positionName(p capture.Position) string {
	if p == capture.PositionUnspecified {
		return ""
	}
	return p.String()
}

func (h *GalleryHandler) Index(c *gin.Context) {
	items, err := h.Gallery.Items()
	if err != nil {
		slog.Error("Failed to list gallery", "error", err)
		items = []gallery.Item{}
	}
	data := gin.H{"items": items}
	if h.Status != nil {
		data["status"] = h.Status()
	}
	render(c, h.Templates, http.StatusOK, "index.html", data)
}

func (h *GalleryHandler) List(c *gin.Context) {
	items, err := h.Gallery.Items()
	if err != nil {
		respondError(c, err)
		return
	}
	if c.GetHeader("HX-Request") == "true" {
		render(c, h.Templates, http.StatusOK, "gallery-list", gin.H{"items": items})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *GalleryHandler) File(c *gin.Context) {
	path, err := h.Gallery.Path(c.Param("name"))
	if err != nil {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	c.File(path)
}

func (h *GalleryHandler) Delete(c *gin.Context) {
	if err := h.Gallery.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
