package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/audit"
	"github.com/rahmahapps/mawadda-server/match"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/subscription"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InterestHandler exposes the interest ledger and match state over REST.
type InterestHandler struct {
	db       *gorm.DB
	resolver *match.Resolver
	subs     *subscription.Service
	audit    *audit.Service
	logger   *zap.Logger
}

// NewInterestHandler creates an InterestHandler.
func NewInterestHandler(db *gorm.DB, resolver *match.Resolver, subs *subscription.Service, auditSvc *audit.Service, logger *zap.Logger) *InterestHandler {
	return &InterestHandler{db: db, resolver: resolver, subs: subs, audit: auditSvc, logger: logger}
}

type interestActionRequest struct {
	ToUserID int64  `json:"to_user_id" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=send accept decline cancel"`
}

// Act handles POST /api/interests. The action is validated against the
// pair's current relationship and appended to the ledger if legal.
func (h *InterestHandler) Act(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req interestActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	state, err := h.resolver.ProposeAction(c.Request.Context(), userID, req.ToUserID, req.Action)

	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		UserID:     &userID,
		Action:     "interest." + req.Action,
		Request:    req,
		Response:   state,
		Error:      errString(err),
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})

	if err != nil {
		status, msg := interestErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// interestErrorStatus maps resolver errors onto HTTP statuses.
func interestErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, match.ErrInvalidActor):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, match.ErrQuotaExceeded):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, match.ErrInvalidEvent), errors.Is(err, match.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, match.ErrStorage):
		return http.StatusServiceUnavailable, "temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// State handles GET /api/interests/state/:id, returning the caller's
// relationship with the given member.
func (h *InterestHandler) State(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || otherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	state, err := h.resolver.CurrentState(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Matches handles GET /api/interests/matches.
func (h *InterestHandler) Matches(c *gin.Context) {
	userID := mw.GetUserID(c)
	ov, err := h.resolver.Overview(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": h.profiles(ov.Matches)})
}

// Received handles GET /api/interests/received. Listing who is interested
// in you is a paid-plan feature; free members get the count only.
func (h *InterestHandler) Received(c *gin.Context) {
	userID := mw.GetUserID(c)
	ov, err := h.resolver.Overview(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	_, plan, err := h.subs.Current(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	if !plan.SeeIncoming {
		c.JSON(http.StatusOK, gin.H{
			"count":    len(ov.Incoming),
			"locked":   true,
			"received": []model.PublicProfile{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(ov.Incoming),
		"locked":   false,
		"received": h.profiles(ov.Incoming),
	})
}

// Sent handles GET /api/interests/sent.
func (h *InterestHandler) Sent(c *gin.Context) {
	userID := mw.GetUserID(c)
	ov, err := h.resolver.Overview(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": h.profiles(ov.Outgoing)})
}

// History handles GET /api/interests/history/:id, returning the raw event
// trail between the caller and another member, oldest first.
func (h *InterestHandler) History(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || otherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var events []model.InterestEvent
	if err := h.db.WithContext(c.Request.Context()).
		Where("pair_key = ?", model.PairKey(userID, otherID)).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// profiles loads the public projections for a list of member IDs,
// preserving the input order.
func (h *InterestHandler) profiles(ids []int64) []model.PublicProfile {
	out := make([]model.PublicProfile, 0, len(ids))
	if len(ids) == 0 {
		return out
	}
	var users []model.User
	if err := h.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		return out
	}
	byID := make(map[int64]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	now := time.Now()
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Public(now))
		}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
