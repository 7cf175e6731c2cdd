package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/rahmahapps/mawadda-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnknownPlan is returned when activating a plan ID that does not exist.
var ErrUnknownPlan = errors.New("subscription: unknown plan")

// Service answers plan and billing-period questions for a user.
// Payment itself is handled by an external billing provider; Activate only
// records the entitlement the provider confirmed.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a subscription Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Current returns the user's subscription and its plan.
// Users without an active, unexpired row are on the free tier, anchored at
// their registration date so quota periods are well defined.
func (s *Service) Current(ctx context.Context, userID int64) (model.Subscription, Plan, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND end_date > ?", userID, true, time.Now()).
		Order("end_date DESC").
		First(&sub).Error
	if err == nil {
		plan, ok := PlanByID(sub.Plan)
		if !ok {
			// Unknown plan in the DB: fail closed to free entitlements.
			s.logger.Warn("subscription row has unknown plan, treating as free",
				zap.Int64("user_id", userID), zap.String("plan", sub.Plan))
			plan = plans[PlanFree]
		}
		return sub, plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Subscription{}, Plan{}, err
	}

	var user model.User
	if err := s.db.WithContext(ctx).Select("id, created_at").First(&user, userID).Error; err != nil {
		return model.Subscription{}, Plan{}, err
	}
	free := model.Subscription{
		UserID:    userID,
		Plan:      PlanFree,
		StartDate: user.CreatedAt,
		Active:    true,
	}
	return free, plans[PlanFree], nil
}

// Activate records a confirmed subscription to the given plan for one month,
// replacing any currently active row.
func (s *Service) Activate(ctx context.Context, userID int64, planID string) (model.Subscription, error) {
	if _, ok := PlanByID(planID); !ok || planID == PlanFree {
		return model.Subscription{}, ErrUnknownPlan
	}

	now := time.Now()
	sub := model.Subscription{
		UserID:    userID,
		Plan:      planID,
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
		Active:    true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Subscription{}).
			Where("user_id = ? AND active = ?", userID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		return model.Subscription{}, err
	}
	s.logger.Info("subscription activated",
		zap.Int64("user_id", userID), zap.String("plan", planID))
	return sub, nil
}

// PeriodStart returns the start of the user's current billing period.
// Periods step in whole months from the subscription start date (or the
// registration date for free users), not from calendar month boundaries.
func (s *Service) PeriodStart(ctx context.Context, userID int64, now time.Time) (time.Time, error) {
	sub, _, err := s.Current(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return periodStart(sub.StartDate, now), nil
}

// periodStart walks forward from anchor in one-month steps and returns the
// last step not after now.
func periodStart(anchor, now time.Time) time.Time {
	if !anchor.Before(now) {
		return anchor
	}
	p := anchor
	for {
		next := p.AddDate(0, 1, 0)
		if next.After(now) {
			return p
		}
		p = next
	}
}

// ExpireLapsed deactivates subscriptions whose end date has passed.
// Called periodically by the scheduler.
func (s *Service) ExpireLapsed(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("active = ? AND end_date <= ?", true, time.Now()).
		Update("active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired lapsed subscriptions", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
