package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remedygo/remedyd/internal/assist"
)

// AssistHandler exposes product Q&A.
type AssistHandler struct {
	svc   *assist.Service
	cache *IdentityCache
}

// NewAssistHandler creates the assist handler.
func NewAssistHandler(svc *assist.Service, cache *IdentityCache) *AssistHandler {
	return &AssistHandler{svc: svc, cache: cache}
}

// Register mounts the assist routes.
func (h *AssistHandler) Register(g *gin.RouterGroup) {
	g.POST("/assist/ask", h.ask)
}

type askBody struct {
	Question string `json:"question" binding:"required"`
}

func (h *AssistHandler) ask(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body askBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	answer, err := h.svc.Ask(c.Request.Context(), ident.UserID, body.Question)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}
