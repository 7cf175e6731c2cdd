package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rahmahapps/mawadda-server/match"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/subscription"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotMatched rejects messaging a user the sender is not matched with.
	ErrNotMatched = errors.New("messaging: users are not matched")
	// ErrPlanForbidden rejects messaging on a plan without the entitlement.
	ErrPlanForbidden = errors.New("messaging: plan does not include messaging")
	// ErrNotParticipant rejects reading a conversation one is not part of.
	ErrNotParticipant = errors.New("messaging: not a participant")
	// ErrEmptyBody rejects blank messages.
	ErrEmptyBody = errors.New("messaging: empty message body")
)

const previewLen = 120

// Service manages conversations between matched pairs. A conversation is
// created lazily on the first message; history survives an unmatch but
// sending is re-gated on the pair's current state every time.
type Service struct {
	db       *gorm.DB
	resolver *match.Resolver
	subs     *subscription.Service
	logger   *zap.Logger
}

// NewService creates a messaging Service.
func NewService(db *gorm.DB, resolver *match.Resolver, subs *subscription.Service, logger *zap.Logger) *Service {
	return &Service{db: db, resolver: resolver, subs: subs, logger: logger}
}

// Send delivers a message from one user to another. The pair must be
// matched and the sender's plan must include messaging.
func (s *Service) Send(ctx context.Context, from, to int64, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	state, err := s.resolver.CurrentState(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if state.Status != match.StatusMatched {
		return nil, ErrNotMatched
	}

	_, plan, err := s.subs.Current(ctx, from)
	if err != nil {
		return nil, err
	}
	if !plan.Messaging {
		return nil, ErrPlanForbidden
	}

	var msg *model.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.findOrCreateConversation(tx, from, to)
		if err != nil {
			return err
		}
		msg = &model.Message{
			ConversationID: conv.ID,
			SenderID:       from,
			Body:           body,
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		preview := body
		if len(preview) > previewLen {
			preview = preview[:previewLen]
		}
		return tx.Model(conv).Updates(map[string]interface{}{
			"last_message": preview,
			"last_sent_at": time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversations returns the user's conversations, most recent first.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_sent_at DESC").
		Find(&convs).Error
	return convs, err
}

// Messages returns a conversation's messages in chronological order and
// marks the other side's messages as read. The caller must be a
// participant.
func (s *Service) Messages(ctx context.Context, convID, userID int64, limit int) ([]model.Message, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, convID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	if !conv.Involves(userID) {
		return nil, ErrNotParticipant
	}

	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// Best-effort read receipt; a failure is harmless for the read path.
	if err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND read = ?", convID, userID, false).
		Update("read", true).Error; err != nil {
		s.logger.Warn("mark read failed", zap.Int64("conversation_id", convID), zap.Error(err))
	}
	return msgs, nil
}

func (s *Service) findOrCreateConversation(tx *gorm.DB, a, b int64) (*model.Conversation, error) {
	key := model.PairKey(a, b)
	var conv model.Conversation
	err := tx.Where("pair_key = ?", key).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	conv = model.Conversation{PairKey: key, UserAID: lo, UserBID: hi, LastSentAt: time.Now()}
	if err := tx.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}
