package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wachiwi/capturekit/pkg/capture"
)

type EventsHandler struct {
	Cam Controller
}

type eventMessage struct {
	Type        string    `json:"type"`
	Time        time.Time `json:"time"`
	State       string    `json:"state,omitempty"`
	Position    string    `json:"position,omitempty"`
	FlashMode   string    `json:"flash_mode,omitempty"`
	Quality     string    `json:"quality,omitempty"`
	RecordingID string    `json:"recording_id,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func newEventMessage(e capture.Event) eventMessage {
	m := eventMessage{Type: e.Type.String(), Time: e.Time, RecordingID: e.RecordingID}
	switch e.Type {
	case capture.EventStateChanged:
		m.State = e.State.String()
	case capture.EventPositionChanged, capture.EventPhotoTaken,
		capture.EventRecordingStarted, capture.EventRecordingFinished:
		m.Position = e.Position.String()
	case capture.EventFlashModeChanged:
		m.FlashMode = e.FlashMode.String()
	case capture.EventQualityChanged:
		m.Quality = e.Quality.String()
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

// Stream sends controller events as server-sent events until the client
// goes away. Events are dropped for a client that falls behind.
func (h *EventsHandler) Stream(c *gin.Context) {
	events := make(chan capture.Event, 32)
	sub := h.Cam.Subscribe(func(e capture.Event) {
		select {
		case events <- e:
		default:
			slog.Warn("Dropping event for slow client", "event", e.Type)
		}
	})
	defer sub.Unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("hello", gin.H{"state": h.Cam.SetupState().String()})
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case e := <-events:
			c.SSEvent(e.Type.String(), newEventMessage(e))
			c.Writer.Flush()
		}
	}
}
