package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/cache"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProfileHandler handles member profile REST endpoints.
type ProfileHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{db: db, cache: c, logger: logger}
}

// Me handles GET /api/profiles/me.
func (h *ProfileHandler) Me(c *gin.Context) {
	userID := mw.GetUserID(c)
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": user})
}

type updateProfileRequest struct {
	DisplayName       string   `json:"display_name" binding:"omitempty,max=64"`
	Gender            string   `json:"gender" binding:"omitempty,oneof=male female"`
	BirthYear         int      `json:"birth_year" binding:"omitempty,min=1920,max=2010"`
	Location          string   `json:"location" binding:"omitempty,max=128"`
	Occupation        string   `json:"occupation" binding:"omitempty,max=128"`
	Education         string   `json:"education" binding:"omitempty,max=128"`
	ReligiousPractice string   `json:"religious_practice" binding:"omitempty,max=128"`
	Madhab            string   `json:"madhab" binding:"omitempty,max=32"`
	Languages         []string `json:"languages"`
	AboutMe           string   `json:"about_me"`
	LookingFor        string   `json:"looking_for"`
	PhotoURL          string   `json:"photo_url" binding:"omitempty,max=255"`
}

// UpdateMe handles PUT /api/profiles/me.
// A profile counts as completed once the listing essentials are filled in.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	if req.Gender != "" {
		user.Gender = req.Gender
	}
	if req.BirthYear != 0 {
		user.BirthYear = req.BirthYear
	}
	if req.Location != "" {
		user.Location = req.Location
	}
	if req.Occupation != "" {
		user.Occupation = req.Occupation
	}
	if req.Education != "" {
		user.Education = req.Education
	}
	if req.ReligiousPractice != "" {
		user.ReligiousPractice = req.ReligiousPractice
	}
	if req.Madhab != "" {
		user.Madhab = req.Madhab
	}
	if req.Languages != nil {
		if langs, err := json.Marshal(req.Languages); err == nil {
			user.Languages = datatypes.JSON(langs)
		}
	}
	if req.AboutMe != "" {
		user.AboutMe = req.AboutMe
	}
	if req.LookingFor != "" {
		user.LookingFor = req.LookingFor
	}
	if req.PhotoURL != "" {
		user.PhotoURL = req.PhotoURL
	}
	user.ProfileCompleted = user.DisplayName != "" && user.Gender != "" &&
		user.BirthYear != 0 && user.Location != ""

	if err := h.db.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": user})
}

// Get handles GET /api/profiles/:id.
// Other members see the public projection only.
func (h *ProfileHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var user model.User
	if err := h.db.Where("id = ? AND status = 1", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": user.Public(time.Now())})
}

// Browse handles GET /api/profiles?gender=&age_min=&age_max=&location=&page=&page_size=.
// Returns completed, active profiles excluding the caller.
func (h *ProfileHandler) Browse(c *gin.Context) {
	userID := mw.GetUserID(c)
	now := time.Now()

	q := h.db.Model(&model.User{}).
		Where("id != ? AND status = 1 AND profile_completed = ?", userID, true)

	if gender := c.Query("gender"); gender != "" {
		q = q.Where("gender = ?", gender)
	}
	if ageMin, err := strconv.Atoi(c.Query("age_min")); err == nil && ageMin > 0 {
		q = q.Where("birth_year <= ?", now.Year()-ageMin)
	}
	if ageMax, err := strconv.Atoi(c.Query("age_max")); err == nil && ageMax > 0 {
		q = q.Where("birth_year >= ?", now.Year()-ageMax)
	}
	if loc := c.Query("location"); loc != "" {
		q = q.Where("location LIKE ?", "%"+loc+"%")
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var users []model.User
	if err := q.Order("last_login_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	profiles := make([]model.PublicProfile, len(users))
	for i := range users {
		profiles[i] = users[i].Public(now)
	}
	c.JSON(http.StatusOK, gin.H{
		"profiles":  profiles,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Recent handles GET /api/profiles/recent?limit=10.
// Serves the recently-active members list from the cache ranking, falling
// back to the DB when the ranking is cold.
func (h *ProfileHandler) Recent(c *gin.Context) {
	limit := 10
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 50 {
		limit = l
	}
	now := time.Now()
	ctx := c.Request.Context()

	members, err := h.cache.ZRevRange(ctx, recentKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		var users []model.User
		h.db.Where("id IN ? AND status = 1 AND profile_completed = ?", ids, true).Find(&users)
		c.JSON(http.StatusOK, gin.H{"profiles": publicAll(users, now)})
		return
	}

	var users []model.User
	h.db.Where("status = 1 AND profile_completed = ?", true).
		Order("last_login_at DESC").
		Limit(limit).
		Find(&users)
	for _, u := range users {
		if u.LastLoginAt != nil {
			_ = h.cache.ZAdd(ctx, recentKey, float64(u.LastLoginAt.Unix()), strconv.FormatInt(u.ID, 10))
		}
	}
	c.JSON(http.StatusOK, gin.H{"profiles": publicAll(users, now)})
}

// RefreshRecent rebuilds the recently-active ranking from the DB.
// Called periodically by the scheduler.
func (h *ProfileHandler) RefreshRecent() {
	var users []model.User
	if err := h.db.Select("id, last_login_at").
		Where("status = 1 AND profile_completed = ? AND last_login_at IS NOT NULL", true).
		Order("last_login_at DESC").
		Limit(100).
		Find(&users).Error; err != nil {
		h.logger.Error("recent ranking refresh failed", zap.Error(err))
		return
	}
	ctx := context.Background()
	for _, u := range users {
		_ = h.cache.ZAdd(ctx, recentKey, float64(u.LastLoginAt.Unix()), strconv.FormatInt(u.ID, 10))
	}
}

func publicAll(users []model.User, now time.Time) []model.PublicProfile {
	out := make([]model.PublicProfile, len(users))
	for i := range users {
		out[i] = users[i].Public(now)
	}
	return out
}
