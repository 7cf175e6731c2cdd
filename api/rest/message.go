package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/messaging"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageHandler exposes match conversations over REST.
type MessageHandler struct {
	db     *gorm.DB
	svc    *messaging.Service
	logger *zap.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(db *gorm.DB, svc *messaging.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{db: db, svc: svc, logger: logger}
}

type sendMessageRequest struct {
	ToUserID int64  `json:"to_user_id" binding:"required"`
	Body     string `json:"body" binding:"required,max=4000"`
}

// Send handles POST /api/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), userID, req.ToUserID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrNotMatched):
			c.JSON(http.StatusForbidden, gin.H{"error": "you can only message your matches"})
		case errors.Is(err, messaging.ErrPlanForbidden):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "messaging requires a paid plan"})
		case errors.Is(err, messaging.ErrEmptyBody):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message body is empty"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Conversations handles GET /api/messages/conversations, most recent first,
// with the counterpart's public profile attached.
func (h *MessageHandler) Conversations(c *gin.Context) {
	userID := mw.GetUserID(c)
	convs, err := h.svc.Conversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	otherIDs := make([]int64, 0, len(convs))
	for _, conv := range convs {
		otherIDs = append(otherIDs, conv.Other(userID))
	}
	byID := make(map[int64]model.PublicProfile, len(otherIDs))
	if len(otherIDs) > 0 {
		var users []model.User
		if err := h.db.Where("id IN ?", otherIDs).Find(&users).Error; err == nil {
			now := time.Now()
			for _, u := range users {
				byID[u.ID] = u.Public(now)
			}
		}
	}

	out := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		item := gin.H{"conversation": conv}
		if p, ok := byID[conv.Other(userID)]; ok {
			item["with"] = p
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Messages handles GET /api/messages/conversations/:id?limit=100.
func (h *MessageHandler) Messages(c *gin.Context) {
	userID := mw.GetUserID(c)
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.svc.Messages(c.Request.Context(), convID, userID, limit)
	if err != nil {
		if errors.Is(err, messaging.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your conversation"})
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
