package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/remedygo/remedyd/internal/chat"
)

// ChatHandler exposes the chat engine.
type ChatHandler struct {
	engine *chat.Engine
	cache  *IdentityCache
}

// NewChatHandler creates the chat handler.
func NewChatHandler(engine *chat.Engine, cache *IdentityCache) *ChatHandler {
	return &ChatHandler{engine: engine, cache: cache}
}

// Register mounts the chat routes.
func (h *ChatHandler) Register(g *gin.RouterGroup) {
	g.GET("/chats", h.listChats)
	g.PATCH("/chats/:chatID", h.rename)
	g.POST("/chats/:chatID/leave", h.leave)
	g.POST("/chats/:chatID/mute", h.toggleMute)
	g.POST("/chats/:chatID/pin", h.togglePin)
	g.POST("/chats/:chatID/report", h.report)
	g.POST("/chats/:chatID/read", h.markRead)
	g.GET("/chats/:chatID/typing", h.typingIn)
	g.POST("/chats/:chatID/typing", h.setTyping)
	g.GET("/chats/:chatID/members", h.members)
	g.POST("/chats/:chatID/members", h.addMembers)
	g.DELETE("/chats/:chatID/members/:userID", h.removeMember)
	g.POST("/chats/:chatID/attachments", h.uploadAttachment)
	g.GET("/chats/:chatID/messages", h.listMessages)
	g.POST("/chats/:chatID/messages", h.send)
	g.PATCH("/chats/:chatID/messages/:msgID", h.edit)
	g.DELETE("/chats/:chatID/messages/:msgID", h.deleteMessage)
	g.POST("/chats/:chatID/messages/:msgID/retry", h.retry)
	g.GET("/chats/:chatID/messages/:msgID/reactions", h.reactions)
	g.POST("/chats/:chatID/messages/:msgID/reactions", h.toggleReaction)
}

func (h *ChatHandler) listChats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	chats, err := h.engine.ListChats(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *ChatHandler) listMessages(c *gin.Context) {
	if requireIdentity(c, h.cache) == nil {
		return
	}
	before, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.engine.Messages(c.Param("chatID"), before, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendBody struct {
	Body          string `json:"body"`
	MessageType   string `json:"message_type"`
	AttachmentURL string `json:"attachment_url"`
	ReplyToID     string `json:"reply_to_id"`
}

func (h *ChatHandler) send(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body sendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	msg, err := h.engine.SendMessage(c.Request.Context(), ident, chat.SendInput{
		ChatID:        c.Param("chatID"),
		Body:          body.Body,
		MessageType:   body.MessageType,
		AttachmentURL: body.AttachmentURL,
		ReplyToID:     body.ReplyToID,
	})
	if err != nil && msg == nil {
		fail(c, err)
		return
	}
	// A failed delivery still returns the stored message; its status and
	// error text tell the client what happened and enable retry.
	status := http.StatusCreated
	if err != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"message": msg})
}

func (h *ChatHandler) retry(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	msg, err := h.engine.RetrySend(c.Request.Context(), ident, c.Param("chatID"), c.Param("msgID"))
	if err != nil && msg == nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"message": msg})
}

// uploadAttachment stores the raw request body in the backend object store
// and returns the URL to reference from a send.
func (h *ChatHandler) uploadAttachment(c *gin.Context) {
	if requireIdentity(c, h.cache) == nil {
		return
	}
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "name query parameter is required"})
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	url, err := h.engine.UploadAttachment(c.Request.Context(), name, data, c.ContentType())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type editBody struct {
	Body string `json:"body" binding:"required"`
}

func (h *ChatHandler) edit(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body editBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.EditMessage(c.Request.Context(), ident, c.Param("chatID"), c.Param("msgID"), body.Body); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) deleteMessage(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	if err := h.engine.DeleteMessage(c.Request.Context(), ident, c.Param("chatID"), c.Param("msgID")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reactionBody struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *ChatHandler) toggleReaction(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body reactionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	reacted, err := h.engine.ToggleReaction(c.Request.Context(), ident.UserID, c.Param("chatID"), c.Param("msgID"), body.Emoji)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reacted": reacted})
}

func (h *ChatHandler) reactions(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	summaries, err := h.engine.ReactionsFor(c.Param("msgID"), ident.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": summaries})
}

type typingBody struct {
	Typing bool `json:"typing"`
}

func (h *ChatHandler) setTyping(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body typingBody
	_ = c.ShouldBindJSON(&body)
	var err error
	if body.Typing {
		err = h.engine.SetTyping(c.Request.Context(), ident, c.Param("chatID"))
	} else {
		err = h.engine.ClearTyping(c.Request.Context(), ident, c.Param("chatID"))
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) typingIn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"typing": h.engine.TypingIn(c.Param("chatID"))})
}

func (h *ChatHandler) markRead(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	if err := h.engine.MarkRead(c.Request.Context(), ident, c.Param("chatID")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) members(c *gin.Context) {
	members, err := h.engine.Members(c.Param("chatID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type reportBody struct {
	MsgID       string `json:"message_id"`
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

func (h *ChatHandler) report(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body reportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.ReportChat(c.Request.Context(), ident, c.Param("chatID"), body.MsgID, body.Reason, body.Description); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) toggleMute(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	muted, err := h.engine.ToggleMute(c.Request.Context(), ident, c.Param("chatID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *ChatHandler) togglePin(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	pinned, err := h.engine.TogglePin(c.Request.Context(), ident, c.Param("chatID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": pinned})
}

func (h *ChatHandler) leave(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	if err := h.engine.LeaveChat(c.Request.Context(), ident, c.Param("chatID")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type renameBody struct {
	Name string `json:"name" binding:"required"`
}

func (h *ChatHandler) rename(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.UpdateGroupName(c.Request.Context(), ident, c.Param("chatID"), body.Name); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addMembersBody struct {
	UserIDs []string `json:"user_ids" binding:"required"`
}

func (h *ChatHandler) addMembers(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	var body addMembersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.AddMembers(c.Request.Context(), ident, c.Param("chatID"), body.UserIDs); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) removeMember(c *gin.Context) {
	ident := requireIdentity(c, h.cache)
	if ident == nil {
		return
	}
	if err := h.engine.RemoveMember(c.Request.Context(), ident, c.Param("chatID"), c.Param("userID")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
