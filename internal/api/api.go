// Package api exposes the daemon's operations over HTTP on the profile's
// unix socket. One handler struct per concern; Register wires each onto
// the shared /v1 group.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/chat"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
}

// fail writes an error response with a status derived from the error kind.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrChatNotFound), errors.Is(err, chat.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNotOwner), errors.Is(err, chat.ErrNotAdmin), errors.Is(err, chat.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrEmptyBody), errors.Is(err, chat.ErrNotRetryable):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrRemote):
		return http.StatusBadGateway
	default:
		// Anything unmarked is a local fault (store, serialization), not
		// the backend's.
		return http.StatusInternalServerError
	}
}

// requireIdentity aborts with 401 unless a user is signed in.
func requireIdentity(c *gin.Context, cache *IdentityCache) *backend.Identity {
	ident := cache.Current()
	if ident == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return nil
	}
	return ident
}
