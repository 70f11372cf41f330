package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remedygo/remedyd/internal/analytics"
	"github.com/remedygo/remedyd/internal/store"
)

// AnalyticsHandler exposes event emission and queue introspection.
type AnalyticsHandler struct {
	emitter *analytics.Emitter
	drainer *analytics.Drainer
	db      *store.DB
	cache   *IdentityCache
}

// NewAnalyticsHandler creates the analytics handler.
func NewAnalyticsHandler(emitter *analytics.Emitter, drainer *analytics.Drainer, db *store.DB, cache *IdentityCache) *AnalyticsHandler {
	return &AnalyticsHandler{emitter: emitter, drainer: drainer, db: db, cache: cache}
}

// Register mounts the analytics routes.
func (h *AnalyticsHandler) Register(g *gin.RouterGroup) {
	g.POST("/events", h.emit)
	g.GET("/queue", h.queue)
	g.POST("/queue/drain", h.drain)
}

type eventBody struct {
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// decodePayload maps a wire kind onto its typed payload. Session and screen
// events are emitted internally, never through this endpoint.
func decodePayload(kind string, raw json.RawMessage) (analytics.Payload, error) {
	var (
		p   analytics.Payload
		err error
	)
	switch analytics.Kind(kind) {
	case analytics.KindAssetEvent:
		var v analytics.AssetEventPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case analytics.KindProfileView:
		var v analytics.ProfileViewPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case analytics.KindDirectorySearch:
		var v analytics.DirectorySearchPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case analytics.KindNotificationClick:
		var v analytics.NotificationClickPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unsupported event kind %q", kind)
	}
	return p, err
}

func (h *AnalyticsHandler) emit(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body eventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	p, err := decodePayload(body.Kind, body.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	// Emission is fire-and-forget: failures fall back to the queue and are
	// never the caller's problem.
	h.emitter.Emit(c.Request.Context(), ident.UserID, p)
	c.Status(http.StatusAccepted)
}

func (h *AnalyticsHandler) queue(c *gin.Context) {
	depth, err := h.db.QueueDepth()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"depth": depth})
}

func (h *AnalyticsHandler) drain(c *gin.Context) {
	delivered, failed, err := h.drainer.Drain(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered, "failed": failed})
}
