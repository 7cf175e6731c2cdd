package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/audit"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/subscription"
	"go.uber.org/zap"
)

// SubscriptionHandler exposes plan listing and plan changes over REST.
type SubscriptionHandler struct {
	subs   *subscription.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(subs *subscription.Service, auditSvc *audit.Service, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, audit: auditSvc, logger: logger}
}

// Plans handles GET /api/subscriptions/plans.
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": subscription.Plans()})
}

// Current handles GET /api/subscriptions/me.
func (h *SubscriptionHandler) Current(c *gin.Context) {
	userID := mw.GetUserID(c)
	sub, plan, err := h.subs.Current(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub, "plan": plan})
}

type subscribeRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// Subscribe handles POST /api/subscriptions. Payment confirmation happens
// out of band; this records the entitlement.
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.subs.Activate(c.Request.Context(), userID, req.Plan)

	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		UserID:   &userID,
		Action:   "subscription.activate",
		Request:  req,
		Response: sub,
		Error:    errString(err),
		IP:       c.ClientIP(),
	})

	if err != nil {
		if errors.Is(err, subscription.ErrUnknownPlan) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	plan, _ := subscription.PlanByID(sub.Plan)
	c.JSON(http.StatusOK, gin.H{"subscription": sub, "plan": plan})
}
