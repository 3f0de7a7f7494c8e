package main

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/wachiwi/capturekit/cmd/camd/handlers"
	"github.com/wachiwi/capturekit/cmd/camd/middleware"
)

//go:embed templates/*
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	return template.ParseFS(sub, "*.html")
}

type routes struct {
	auth    *handlers.AuthHandler
	camera  *handlers.CameraHandler
	gallery *handlers.GalleryHandler
	events  *handlers.EventsHandler
	secret  []byte
}

// newRouter mounts every route. Without credentials the whole UI is open.
func newRouter(r routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.SetTrustedProxies([]string{"127.0.0.1"})

	store := cookie.NewStore(r.secret)
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	router.Use(sessions.Sessions("camd", store))

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	authorized := router.Group("/")
	if r.auth.User != "" {
		router.GET("/login", r.auth.LoginPage)
		router.POST("/login", r.auth.Login)
		router.GET("/logout", r.auth.Logout)
		authorized.Use(middleware.AuthRequired)
	} else {
		slog.Warn("No user configured, camd is open to anyone who can reach it")
	}

	authorized.GET("/", r.gallery.Index)
	authorized.GET("/stream", r.camera.Stream)
	authorized.GET("/snapshot.jpg", r.camera.Snapshot)
	authorized.GET("/captures/:name", r.gallery.File)

	api := authorized.Group("/api")
	api.GET("/status", r.camera.Status)
	api.GET("/events", r.events.Stream)
	api.POST("/connect", r.camera.Connect)
	api.POST("/session/start", r.camera.StartSession)
	api.POST("/session/stop", r.camera.StopSession)
	api.PUT("/position", r.camera.SetPosition)
	api.PUT("/flash", r.camera.SetFlash)
	api.PUT("/quality", r.camera.SetQuality)
	api.POST("/photo", r.camera.TakePhoto)
	api.POST("/recording/start", r.camera.StartRecording)
	api.POST("/recording/stop", r.camera.StopRecording)
	api.GET("/gallery", r.gallery.List)
	api.DELETE("/gallery/:id", r.gallery.Delete)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.FullPath() == "/stream" || c.FullPath() == "/api/events" {
			return
		}
		slog.Debug("Request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}
