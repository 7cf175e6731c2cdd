package messaging

import (
	"context"
	"testing"

	"github.com/rahmahapps/mawadda-server/match"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/notify"
	"github.com/rahmahapps/mawadda-server/subscription"
	"github.com/rahmahapps/mawadda-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMessaging(t *testing.T) (*Service, *gorm.DB, *match.Resolver, *subscription.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()
	subs := subscription.NewService(db, logger)
	resolver := match.NewResolver(db, match.NewLedger(db), subs, notify.NewCenter(), c, logger)
	return NewService(db, resolver, subs, logger), db, resolver, subs
}

// matchPair gets two users matched via mutual interest.
func matchPair(t *testing.T, r *match.Resolver, a, b int64) {
	t.Helper()
	ctx := context.Background()
	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, b, a, model.ActionAccept)
	require.NoError(t, err)
}

func TestSendRequiresMatch(t *testing.T) {
	s, db, _, _ := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")

	_, err := s.Send(context.Background(), a.ID, b.ID, "salaam")
	assert.ErrorIs(t, err, ErrNotMatched)
}

func TestSendRequiresPaidPlan(t *testing.T) {
	s, db, r, _ := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	matchPair(t, r, a.ID, b.ID)

	// Both on the free tier: matched, but messaging is locked.
	_, err := s.Send(context.Background(), a.ID, b.ID, "salaam")
	assert.ErrorIs(t, err, ErrPlanForbidden)
}

func TestSendCreatesConversation(t *testing.T) {
	s, db, r, subs := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	matchPair(t, r, a.ID, b.ID)
	ctx := context.Background()

	_, err := subs.Activate(ctx, a.ID, subscription.PlanBasic)
	require.NoError(t, err)

	msg, err := s.Send(ctx, a.ID, b.ID, "  salaam, how are you?  ")
	require.NoError(t, err)
	assert.Equal(t, "salaam, how are you?", msg.Body)

	var conv model.Conversation
	require.NoError(t, db.Where("pair_key = ?", model.PairKey(a.ID, b.ID)).First(&conv).Error)
	assert.Equal(t, "salaam, how are you?", conv.LastMessage)
	assert.True(t, conv.UserAID < conv.UserBID)

	// Second message reuses the thread.
	_, err = s.Send(ctx, a.ID, b.ID, "still there?")
	require.NoError(t, err)
	var convCount int64
	db.Model(&model.Conversation{}).Count(&convCount)
	assert.Equal(t, int64(1), convCount)
}

func TestSendEmptyBody(t *testing.T) {
	s, db, r, subs := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	matchPair(t, r, a.ID, b.ID)
	ctx := context.Background()
	_, err := subs.Activate(ctx, a.ID, subscription.PlanBasic)
	require.NoError(t, err)

	_, err = s.Send(ctx, a.ID, b.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestSendBlockedAfterUnmatch(t *testing.T) {
	s, db, r, subs := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	matchPair(t, r, a.ID, b.ID)
	ctx := context.Background()
	_, err := subs.Activate(ctx, a.ID, subscription.PlanBasic)
	require.NoError(t, err)

	_, err = s.Send(ctx, a.ID, b.ID, "salaam")
	require.NoError(t, err)

	_, err = r.ProposeAction(ctx, b.ID, a.ID, model.ActionCancel)
	require.NoError(t, err)

	// History stays, sending does not.
	_, err = s.Send(ctx, a.ID, b.ID, "hello?")
	assert.ErrorIs(t, err, ErrNotMatched)
	var msgCount int64
	db.Model(&model.Message{}).Count(&msgCount)
	assert.Equal(t, int64(1), msgCount)
}

func TestMessagesParticipantOnly(t *testing.T) {
	s, db, r, subs := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	nosy := testutil.CreateUser(t, db, "nosy")
	matchPair(t, r, a.ID, b.ID)
	ctx := context.Background()
	_, err := subs.Activate(ctx, a.ID, subscription.PlanBasic)
	require.NoError(t, err)

	_, err = s.Send(ctx, a.ID, b.ID, "salaam")
	require.NoError(t, err)

	convs, err := s.Conversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	_, err = s.Messages(ctx, convs[0].ID, nosy.ID, 0)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.Messages(ctx, 9999, a.ID, 0)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestMessagesMarksRead(t *testing.T) {
	s, db, r, subs := newMessaging(t)
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	matchPair(t, r, a.ID, b.ID)
	ctx := context.Background()
	_, err := subs.Activate(ctx, a.ID, subscription.PlanBasic)
	require.NoError(t, err)

	_, err = s.Send(ctx, a.ID, b.ID, "salaam")
	require.NoError(t, err)

	convs, err := s.Conversations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := s.Messages(ctx, convs[0].ID, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var unread int64
	db.Model(&model.Message{}).Where("read = ?", false).Count(&unread)
	assert.Equal(t, int64(0), unread)
}
