package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/session"
	"github.com/remedygo/remedyd/internal/tracker"
)

// selfSetter receives the authenticated user id. Implemented by the chat
// engine, which needs it to attribute feed echoes.
type selfSetter interface {
	SetSelf(userID string)
}

// LifecycleHandler drives session lifecycle from app visibility and auth
// transitions reported by the UI shell.
type LifecycleHandler struct {
	auth     backend.Auth
	sessions *session.Manager
	tracker  *tracker.Tracker
	cache    *IdentityCache
	self     selfSetter
	logger   *zap.Logger
}

// NewLifecycleHandler creates the lifecycle handler.
func NewLifecycleHandler(auth backend.Auth, sessions *session.Manager, tr *tracker.Tracker, cache *IdentityCache, self selfSetter, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		auth:     auth,
		sessions: sessions,
		tracker:  tr,
		cache:    cache,
		self:     self,
		logger:   logger,
	}
}

// Register mounts the lifecycle routes.
func (h *LifecycleHandler) Register(g *gin.RouterGroup) {
	g.POST("/lifecycle/authenticated", h.authenticated)
	g.POST("/lifecycle/foreground", h.foreground)
	g.POST("/lifecycle/background", h.background)
	g.POST("/lifecycle/logout", h.logout)
	g.POST("/route", h.route)
}

type deviceBody struct {
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	Viewport  string `json:"viewport"`
}

func (d deviceBody) info() backend.DeviceInfo {
	return backend.DeviceInfo{Platform: d.Platform, UserAgent: d.UserAgent, Viewport: d.Viewport}
}

// authenticated re-checks the auth oracle and opens a session for a
// completed profile. The identity cache is refreshed either way.
func (h *LifecycleHandler) authenticated(c *gin.Context) {
	var body deviceBody
	_ = c.ShouldBindJSON(&body)

	ident, err := h.auth.Current(c.Request.Context())
	if err != nil {
		h.logger.Warn("auth check failed", zap.Error(err))
		fail(c, err)
		return
	}
	h.cache.Set(ident)
	if ident != nil && h.self != nil {
		h.self.SetSelf(ident.UserID)
	}
	h.sessions.HandleAuthenticated(c.Request.Context(), ident, body.info())
	c.JSON(http.StatusOK, gin.H{"session": h.sessions.Current()})
}

func (h *LifecycleHandler) foreground(c *gin.Context) {
	var body deviceBody
	_ = c.ShouldBindJSON(&body)
	h.sessions.HandleForeground(c.Request.Context(), h.cache.Current(), body.info())
	c.JSON(http.StatusOK, gin.H{"session": h.sessions.Current()})
}

func (h *LifecycleHandler) background(c *gin.Context) {
	h.sessions.HandleBackground()
	c.Status(http.StatusNoContent)
}

func (h *LifecycleHandler) logout(c *gin.Context) {
	ident := h.cache.Current()
	h.sessions.HandleLogout(c.Request.Context())
	if ident != nil {
		h.tracker.Reset(ident.UserID)
	}
	h.cache.Set(nil)
	c.Status(http.StatusNoContent)
}

type routeBody struct {
	Path string `json:"path" binding:"required"`
}

// route records one navigation for screen-view analytics.
func (h *LifecycleHandler) route(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body routeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	h.tracker.TrackRoute(ident.UserID, body.Path)
	c.Status(http.StatusNoContent)
}
