package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/config"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminAuth guards the admin routes with a static key header. When no key
// is configured the whole admin surface is disabled.
func AdminAuth(cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AdminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin interface disabled"})
			return
		}
		if c.GetHeader("X-Admin-Key") != cfg.AdminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// AdminHandler provides operator endpoints.
type AdminHandler struct {
	db     *gorm.DB
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, sched: sched, logger: logger}
}

// Users handles GET /admin/users?page=&page_size=.
func (h *AdminHandler) Users(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var total int64
	h.db.Model(&model.User{}).Count(&total)

	var users []model.User
	if err := h.db.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page})
}

// SetUserStatus handles POST /admin/users/:id/status with {"status": 0|1}.
// Status 0 bans the account, 1 restores it.
func (h *AdminHandler) SetUserStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Status *int `json:"status" binding:"required,oneof=0 1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := h.db.Model(&model.User{}).Where("id = ?", id).Update("status", *req.Status)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	h.logger.Info("user status changed",
		zap.Int64("user_id", id), zap.Int("status", *req.Status))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Tasks handles GET /admin/tasks, listing the scheduler's recurring jobs.
func (h *AdminHandler) Tasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickers": h.sched.ListTickers()})
}

// Stats handles GET /admin/stats with coarse table counts.
func (h *AdminHandler) Stats(c *gin.Context) {
	var users, events, matches, messages, subs int64
	h.db.Model(&model.User{}).Count(&users)
	h.db.Model(&model.InterestEvent{}).Count(&events)
	h.db.Model(&model.Conversation{}).Count(&matches)
	h.db.Model(&model.Message{}).Count(&messages)
	h.db.Model(&model.Subscription{}).Where("active = ? AND plan != ?", true, "free").Count(&subs)
	c.JSON(http.StatusOK, gin.H{
		"users":           users,
		"interest_events": events,
		"conversations":   matches,
		"messages":        messages,
		"paid_subs":       subs,
	})
}
