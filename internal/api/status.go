package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remedygo/remedyd/internal/session"
	"github.com/remedygo/remedyd/internal/status"
	"github.com/remedygo/remedyd/internal/store"
)

// StatusHandler reports daemon state for the CLI and for health checks.
type StatusHandler struct {
	profile  string
	machine  *status.Machine
	sessions *session.Manager
	cache    *IdentityCache
	db       *store.DB
	started  time.Time
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(profile string, machine *status.Machine, sessions *session.Manager, cache *IdentityCache, db *store.DB) *StatusHandler {
	return &StatusHandler{
		profile:  profile,
		machine:  machine,
		sessions: sessions,
		cache:    cache,
		db:       db,
		started:  time.Now(),
	}
}

// Register mounts the status routes.
func (h *StatusHandler) Register(g *gin.RouterGroup) {
	g.GET("/status", h.status)
	g.GET("/healthz", h.health)
}

func (h *StatusHandler) status(c *gin.Context) {
	chats, _ := h.db.ChatCount()
	messages, _ := h.db.MessageCount()
	depth, _ := h.db.QueueDepth()

	resp := gin.H{
		"profile":        h.profile,
		"connectivity":   string(h.machine.Current()),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"chats":          chats,
		"messages":       messages,
		"queue_depth":    depth,
	}
	if ident := h.cache.Current(); ident != nil {
		resp["user"] = gin.H{"id": ident.UserID, "display_name": ident.DisplayName, "role": ident.Role}
	}
	if s := h.sessions.Current(); s != nil {
		resp["session"] = gin.H{"id": s.SessionID, "started_at": s.StartedAt}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
