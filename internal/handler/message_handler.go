package handler

import (
	"Cryptalk/internal/repo"
	"Cryptalk/internal/service"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RequesterID extracts the authenticated user identity set by the upstream
// auth layer. Falls back to the userId query parameter, matching the
// websocket endpoint.
func RequesterID(c *gin.Context) string {
	if id := c.GetHeader("X-User-Id"); id != "" {
		return id
	}
	return c.Query("userId")
}

type MessageHandler interface {
	SendDirectMessage(c *gin.Context)
	SendGroupMessage(c *gin.Context)
	GetConversation(c *gin.Context)
	GetGroupMessages(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	ToggleReaction(c *gin.Context)
}

type messageHandler struct {
	service *service.MessageService
}

func NewMessageHandler(svc *service.MessageService) MessageHandler {
	return &messageHandler{
		service: svc,
	}
}

// SendDirectMessage persists a direct message and pushes it to the
// receiver's live connection. The response reports whether an encrypted
// send was degraded to plaintext.
func (h *messageHandler) SendDirectMessage(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	receiverID := c.Param("receiverId")

	var in service.SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message body"})
		return
	}

	msg, degraded, err := h.service.SendDirect(c.Request.Context(), requesterID, receiverID, in)
	if err != nil {
		h.writeSendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  msg,
		"degraded": degraded,
	})
}

// SendGroupMessage persists a group message after a membership check and
// fans it out to the group room.
func (h *messageHandler) SendGroupMessage(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	groupID := c.Param("groupId")

	var in service.SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message body"})
		return
	}

	msg, degraded, err := h.service.SendGroup(c.Request.Context(), requesterID, groupID, in)
	if err != nil {
		h.writeSendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  msg,
		"degraded": degraded,
	})
}

// GetConversation returns one page of the direct history between the
// requester and a peer, in chronological order (page 1 is the oldest).
func (h *messageHandler) GetConversation(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	peerID := c.Param("peerId")

	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid page number",
		})
		return
	}

	result, err := h.service.GetConversation(c.Request.Context(), requesterID, peerID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   result.Data,
		"page":       result.Page,
		"totalPages": result.TotalPages,
	})
}

func (h *messageHandler) GetGroupMessages(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	groupID := c.Param("groupId")

	msgs, err := h.service.GetGroupMessages(c.Request.Context(), requesterID, groupID)
	if err != nil {
		if errors.Is(err, service.ErrNotGroupMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, repo.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
	})
}

type editMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *messageHandler) EditMessage(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	messageID := c.Param("messageId")

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	msg, err := h.service.EditMessage(c.Request.Context(), requesterID, messageID, req.Text)
	if err != nil {
		h.writeMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}

func (h *messageHandler) DeleteMessage(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	messageID := c.Param("messageId")

	if err := h.service.DeleteMessage(c.Request.Context(), requesterID, messageID); err != nil {
		h.writeMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"_id": messageID,
	})
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *messageHandler) ToggleReaction(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}
	messageID := c.Param("messageId")

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}

	msg, err := h.service.ToggleReaction(c.Request.Context(), requesterID, messageID, req.Emoji)
	if err != nil {
		h.writeMutationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}

func (h *messageHandler) writeSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
	}
}

// writeMutationError maps guard rejections onto 403 with the stable message
// the client surfaces verbatim.
func (h *messageHandler) writeMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, service.ErrNotAllowed),
		errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotEditable),
		errors.Is(err, service.ErrEditWindowExpired),
		errors.Is(err, service.ErrDeleteWindowExpired),
		errors.Is(err, service.ErrNotLastEdited),
		errors.Is(err, service.ErrNotLastDeleted):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update message"})
	}
}
