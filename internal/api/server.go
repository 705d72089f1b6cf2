// Package api exposes the conversion store, format registry, history, and
// session preferences over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/db"
	"github.com/castlemill/convertd/internal/format"
	"github.com/castlemill/convertd/internal/prefs"
	"github.com/castlemill/convertd/internal/store"
)

type Server struct {
	Router *gin.Engine
	store  *store.Store
	prefs  prefs.Store
	db     *gorm.DB // nil disables history endpoints
}

func NewServer(st *store.Store, pr prefs.Store, g *gorm.DB) *Server {
	r := gin.Default()
	s := &Server{Router: r, store: st, prefs: pr, db: g}

	api := r.Group("/api")
	api.POST("/tasks", s.addTasks)
	api.GET("/tasks", s.listTasks)
	api.GET("/tasks/:id", s.getTask)
	api.GET("/tasks/:id/result", s.downloadResult)
	api.PUT("/tasks/:id/target", s.setTarget)
	api.POST("/tasks/:id/retry", s.retryTask)
	api.DELETE("/tasks/:id", s.removeTask)
	api.DELETE("/tasks", s.clearTasks)
	api.POST("/convert", s.startRun)
	api.GET("/settings", s.getSettings)
	api.PATCH("/settings", s.patchSettings)
	api.GET("/formats", s.listFormats)
	api.GET("/formats/:ext/targets", s.listTargets)
	api.GET("/history", s.listHistory)
	api.GET("/stats", s.getStats)
	api.GET("/prefs/:session", s.getPrefs)
	api.PATCH("/prefs/:session", s.patchPrefs)

	return s
}

// addTasks accepts a multipart upload under the "files" field. Files whose
// format cannot be detected are excluded and reported, not stored.
func (s *Server) addTasks(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	inputs := make([]store.Input, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inputs = append(inputs, store.Input{
			Name:  fh.Filename,
			MIME:  fh.Header.Get("Content-Type"),
			Bytes: data,
		})
	}

	added, skipped := s.store.Add(inputs)
	c.JSON(http.StatusOK, gin.H{"added": added, "skipped": skipped})
}

func (s *Server) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks":   s.store.Tasks(),
		"running": s.store.Running(),
	})
}

func (s *Server) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	task, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) downloadResult(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	task, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if task.Status != store.StatusComplete || task.ResultBytes == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "task has no result"})
		return
	}
	c.Data(http.StatusOK, task.ResultMIME, task.ResultBytes)
}

func (s *Server) setTarget(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	var req struct {
		Extension string `json:"extension"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store.SetTargetFormat(id, req.Extension)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) retryTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	s.store.Retry(id)
	task, found := s.store.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) removeTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	s.store.Remove(id)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) clearTasks(c *gin.Context) {
	s.store.Clear()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) startRun(c *gin.Context) {
	// The run outlives the request; the request context would cancel the
	// engines as soon as the response is written.
	n := s.store.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"dispatched": n, "running": s.store.Running()})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Settings())
}

func (s *Server) patchSettings(c *gin.Context) {
	var patch store.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.QualityLevel != nil && (*patch.QualityLevel < 1 || *patch.QualityLevel > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quality_level must be 1-100"})
		return
	}
	if patch.Mode != nil && *patch.Mode != adapter.ModeSimple && *patch.Mode != adapter.ModeAdvanced {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be simple or advanced"})
		return
	}
	s.store.SetSettings(patch)
	c.JSON(http.StatusOK, s.store.Settings())
}

func (s *Server) listFormats(c *gin.Context) {
	if cat := c.Query("category"); cat != "" {
		c.JSON(http.StatusOK, format.ListByCategory(format.Category(cat)))
		return
	}
	c.JSON(http.StatusOK, format.All())
}

// listTargets returns the formats a given source extension may convert to.
func (s *Server) listTargets(c *gin.Context) {
	desc := format.LookupByExtension(c.Param("ext"))
	if desc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown format"})
		return
	}
	c.JSON(http.StatusOK, format.ListConvertible(desc))
}

func (s *Server) listHistory(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}
	limit := parseIntDefault(c.Query("limit"), 50)
	offset := parseIntDefault(c.Query("offset"), 0)
	rows, total, err := db.ListRecords(s.db, c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

func (s *Server) getStats(c *gin.Context) {
	resp := gin.H{
		"tasks":   len(s.store.Tasks()),
		"running": s.store.Running(),
	}
	if s.db != nil {
		stats, err := db.GetStats(s.db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["history"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPrefs(c *gin.Context) {
	p, err := s.prefs.Get(c.Param("session"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) patchPrefs(c *gin.Context) {
	var patch prefs.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.prefs.Update(c.Param("session"), patch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	p, err := s.prefs.Get(c.Param("session"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
