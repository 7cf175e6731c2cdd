package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationHandler lists and acknowledges stored notifications.
type NotificationHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(db *gorm.DB, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{db: db, logger: logger}
}

// List handles GET /api/notifications?unread=1&limit=50, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := mw.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	q := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if c.Query("unread") == "1" {
		q = q.Where("read = ?", false)
	}

	var notifs []model.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&notifs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var unread int64
	h.db.Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&unread)

	c.JSON(http.StatusOK, gin.H{"notifications": notifs, "unread": unread})
}

// MarkRead handles POST /api/notifications/:id/read. Passing "all" as the
// id acknowledges everything.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := mw.GetUserID(c)
	idParam := c.Param("id")

	q := h.db.WithContext(c.Request.Context()).
		Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userID, false)
	if idParam != "all" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		q = q.Where("id = ?", id)
	}

	res := q.Update("read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}
