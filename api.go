package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confhub/store"
)

// AdminAPI is the admin/metrics HTTP surface (A4): health, a live session
// snapshot, settings, bans, audit history, a synchronous file upload/
// download path, version, and Prometheus metrics — all on one isolated
// port, separate from the conferencing control/video/audio ports.
type AdminAPI struct {
	hub   *Hub
	store *store.Store
	echo  *echo.Echo
}

func NewAdminAPI(hub *Hub, st *store.Store) *AdminAPI {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	a := &AdminAPI{hub: hub, store: st, echo: e}
	a.registerRoutes()
	return a
}

func (a *AdminAPI) registerRoutes() {
	a.echo.GET("/healthz", a.handleHealthz)
	a.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	a.echo.GET("/api/snapshot", a.handleSnapshot)
	a.echo.GET("/api/settings", a.handleGetSettings)
	a.echo.PUT("/api/settings", a.handlePutSettings)
	a.echo.GET("/api/bans", a.handleGetBans)
	a.echo.POST("/api/bans", a.handlePostBan)
	a.echo.DELETE("/api/bans/:id", a.handleDeleteBan)
	a.echo.GET("/api/audit", a.handleGetAuditLog)
	a.echo.POST("/api/files", a.handleUploadFile)
	a.echo.GET("/api/files/:fid", a.handleDownloadFile)
	a.echo.GET("/api/version", a.handleVersion)
}

// Run starts the Echo HTTP server on addr and blocks until ctx is canceled.
func (a *AdminAPI) Run(ctx context.Context, addr string) {
	go func() {
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

func (a *AdminAPI) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": Version})
}

func (a *AdminAPI) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"participants": a.hub.reg.Count(),
	})
}

// SnapshotResponse is the live session state (component C4/C3), for operator
// visibility — never reconstructed from the administrative store.
type SnapshotResponse struct {
	Participants []ParticipantInfo        `json:"participants"`
	HostID       uint32                   `json:"host_id"`
	PresenterID  *uint32                  `json:"presenter_id,omitempty"`
	ChatHistory  []ChatEntryWire          `json:"chat_history"`
	SharedFiles  map[string]FileEntryWire `json:"shared_files"`
}

func (a *AdminAPI) handleSnapshot(c echo.Context) error {
	resp := SnapshotResponse{
		Participants: a.hub.reg.RosterInfo(),
		ChatHistory:  a.hub.sess.ChatHistory(),
		SharedFiles:  a.hub.sess.FilesList(),
	}
	resp.HostID, _ = a.hub.reg.HostID()
	if id, ok := a.hub.sess.Presenter(); ok {
		resp.PresenterID = &id
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *AdminAPI) handleGetSettings(c echo.Context) error {
	settings, err := a.store.GetAllSettings()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, settings)
}

func (a *AdminAPI) handlePutSettings(c echo.Context) error {
	var req map[string]string
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for k, v := range req {
		if err := a.store.SetSetting(k, v); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *AdminAPI) handleGetBans(c echo.Context) error {
	bans, err := a.store.GetBans()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if bans == nil {
		bans = []store.Ban{}
	}
	return c.JSON(http.StatusOK, bans)
}

func (a *AdminAPI) handlePostBan(c echo.Context) error {
	var req struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if _, err := a.store.InsertBan(req.Name, req.Reason); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

func (a *AdminAPI) handleDeleteBan(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid ban id")
	}
	if err := a.store.DeleteBan(id); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "ban not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *AdminAPI) handleGetAuditLog(c echo.Context) error {
	action := c.QueryParam("action")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := a.store.GetAuditLog(action, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// handleUploadFile seeds the spool over HTTP, e.g. for an operator without a
// conferencing client. It registers through the same shared-file index and
// broadcasts the same file_available event as the wire protocol path.
func (a *AdminAPI) handleUploadFile(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxFileSize+1024)

	file, header, err := c.Request().FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid file field")
	}
	defer file.Close()

	if header.Size > maxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds max size")
	}

	clean, err := sanitizeFilename(header.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dest := filepath.Join(a.hub.cfg.SpoolDir, clean)
	dst, err := os.Create(dest)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create file")
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(dest)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to write file")
	}
	addFileBytes("upload", written)

	fid := "manual_" + itoa64(a.hub.sess.manualSeq.Add(1)) + "_" + clean
	entry := SharedFileEntry{
		FID: fid, Filename: clean, SizeBytes: written,
		Uploader: "admin", UploaderID: "manual",
		Path: dest, UploadedAt: time.Now(),
	}
	if !a.hub.sess.RegisterFile(entry) {
		os.Remove(dest)
		return echo.NewHTTPError(http.StatusConflict, "fid already exists")
	}
	a.hub.fan.FileAvailable(ControlMsg{Type: "file_available", FID: fid, Filename: clean, Size: written, Uploader: "admin"})

	return c.JSON(http.StatusCreated, entry.wire())
}

func (a *AdminAPI) handleDownloadFile(c echo.Context) error {
	entry, ok := a.hub.sess.LookupFile(c.Param("fid"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, entry.Filename))
	return c.File(entry.Path)
}

// jsonErrorHandler ensures all error responses have a consistent JSON body:
//
//	{"error": "message"}
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
