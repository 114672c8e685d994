package handler

import (
	"Cryptalk/internal/repo"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type UserHandler interface {
	GetUsers(c *gin.Context)
	GetPublicKey(c *gin.Context)
	SetPublicKey(c *gin.Context)
	PinChat(c *gin.Context)
	UnpinChat(c *gin.Context)
	GetPinnedChats(c *gin.Context)
	ArchiveChat(c *gin.Context)
	UnarchiveChat(c *gin.Context)
	GetArchivedChats(c *gin.Context)
}

type userHandler struct {
	users repo.UserRepository
}

func NewUserHandler(users repo.UserRepository) UserHandler {
	return &userHandler{
		users: users,
	}
}

// GetUsers lists users for the contact sidebar, excluding the requester.
// An optional ?search= narrows by name.
func (h *userHandler) GetUsers(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	users, err := h.users.SearchUsers(c.Request.Context(), requesterID, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
	})
}

// GetPublicKey returns the stored public key of one user. Peers call this
// before wrapping a session key for that user.
func (h *userHandler) GetPublicKey(c *gin.Context) {
	userID := c.Param("userId")

	key, err := h.users.GetPublicKey(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get public key"})
		return
	}
	if key == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "User has no public key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"publicKey": key,
	})
}

type setPublicKeyRequest struct {
	PublicKey string `json:"publicKey" binding:"required"`
}

// SetPublicKey publishes the requester's public key to the directory.
// Only the key owner may publish it.
func (h *userHandler) SetPublicKey(c *gin.Context) {
	requesterID := RequesterID(c)
	userID := c.Param("userId")
	if requesterID == "" || requesterID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only publish your own key"})
		return
	}

	var req setPublicKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicKey is required"})
		return
	}

	if err := h.users.SetPublicKey(c.Request.Context(), userID, req.PublicKey); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store public key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
	})
}

// PinChat pins the conversation with a peer to the top of the requester's
// sidebar. Pinning is a per-user preference and is invisible to the peer.
func (h *userHandler) PinChat(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	peerID := c.Param("peerId")
	if err := h.users.PinChat(c.Request.Context(), requesterID, peerID); err != nil {
		h.writeChatListError(c, err, "Failed to pin chat")
		return
	}

	c.JSON(http.StatusOK, gin.H{"peerId": peerID, "pinned": true})
}

// UnpinChat removes a pin. Unpinning a chat that was never pinned succeeds.
func (h *userHandler) UnpinChat(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	peerID := c.Param("peerId")
	if err := h.users.UnpinChat(c.Request.Context(), requesterID, peerID); err != nil {
		h.writeChatListError(c, err, "Failed to unpin chat")
		return
	}

	c.JSON(http.StatusOK, gin.H{"peerId": peerID, "pinned": false})
}

// GetPinnedChats lists the requester's pinned conversation partners.
func (h *userHandler) GetPinnedChats(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	chats, err := h.users.PinnedChats(c.Request.Context(), requesterID)
	if err != nil {
		h.writeChatListError(c, err, "Failed to get pinned chats")
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ArchiveChat tucks a conversation away from the requester's sidebar.
func (h *userHandler) ArchiveChat(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	peerID := c.Param("peerId")
	if err := h.users.ArchiveChat(c.Request.Context(), requesterID, peerID); err != nil {
		h.writeChatListError(c, err, "Failed to archive chat")
		return
	}

	c.JSON(http.StatusOK, gin.H{"peerId": peerID, "archived": true})
}

// UnarchiveChat restores a conversation to the sidebar.
func (h *userHandler) UnarchiveChat(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	peerID := c.Param("peerId")
	if err := h.users.UnarchiveChat(c.Request.Context(), requesterID, peerID); err != nil {
		h.writeChatListError(c, err, "Failed to unarchive chat")
		return
	}

	c.JSON(http.StatusOK, gin.H{"peerId": peerID, "archived": false})
}

// GetArchivedChats lists the requester's archived conversation partners.
func (h *userHandler) GetArchivedChats(c *gin.Context) {
	requesterID := RequesterID(c)
	if requesterID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	chats, err := h.users.ArchivedChats(c.Request.Context(), requesterID)
	if err != nil {
		h.writeChatListError(c, err, "Failed to get archived chats")
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *userHandler) writeChatListError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, repo.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, repo.ErrChatAlreadyPinned):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chat is already pinned"})
	case errors.Is(err, repo.ErrChatAlreadyArchived):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chat is already archived"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
