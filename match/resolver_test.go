package match

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/notify"
	"github.com/rahmahapps/mawadda-server/subscription"
	"github.com/rahmahapps/mawadda-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newResolver(t *testing.T) (*Resolver, *gorm.DB, *subscription.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()
	subs := subscription.NewService(db, logger)
	r := NewResolver(db, NewLedger(db), subs, notify.NewCenter(), c, logger)
	return r, db, subs
}

func twoUsers(t *testing.T, db *gorm.DB) (int64, int64) {
	t.Helper()
	a := testutil.CreateUser(t, db, "amina")
	b := testutil.CreateUser(t, db, "bilal")
	return a.ID, b.ID
}

func TestProposeSendThenAccept(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	state, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, a, state.SenderID)

	state, err = r.ProposeAction(ctx, b, a, model.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, state.Status)

	// Symmetric: both sides see the same state.
	sa, err := r.CurrentState(ctx, a, b)
	require.NoError(t, err)
	sb, err := r.CurrentState(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Equal(t, StatusMatched, sa.Status)
}

func TestProposeMutualSendMatches(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	state, err := r.ProposeAction(ctx, b, a, model.ActionSend)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, state.Status)
}

func TestProposeAcceptBySenderAppendsNothing(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)

	_, err = r.ProposeAction(ctx, a, b, model.ActionAccept)
	assert.ErrorIs(t, err, ErrInvalidActor)

	var count int64
	db.Model(&model.InterestEvent{}).Where("pair_key = ?", model.PairKey(a, b)).Count(&count)
	assert.Equal(t, int64(1), count, "rejected action must not reach the ledger")
}

func TestProposeDeclineThenResend(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	state, err := r.ProposeAction(ctx, b, a, model.ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, state.Status)
	assert.Equal(t, b, state.DeclinedBy)

	// Declined is not terminal: the sender may try again.
	state, err = r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, state.Status)
}

func TestProposeCancelPendingByRecipientRejected(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, b, a, model.ActionCancel)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestProposeUnmatch(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, b, a, model.ActionAccept)
	require.NoError(t, err)

	state, err := r.ProposeAction(ctx, b, a, model.ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, None, state)
}

func TestProposeSelfInterestRejected(t *testing.T) {
	r, db, _ := newResolver(t)
	a, _ := twoUsers(t, db)

	_, err := r.ProposeAction(context.Background(), a, a, model.ActionSend)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestProposeUnknownActionRejected(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)

	_, err := r.ProposeAction(context.Background(), a, b, "poke")
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestQuotaFreeTier(t *testing.T) {
	r, db, _ := newResolver(t)
	sender := testutil.CreateUser(t, db, "sender")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		target := testutil.CreateUser(t, db, fmt.Sprintf("target%d", i))
		_, err := r.ProposeAction(ctx, sender.ID, target.ID, model.ActionSend)
		require.NoError(t, err, "send %d within allowance", i+1)
	}

	extra := testutil.CreateUser(t, db, "extra")
	_, err := r.ProposeAction(ctx, sender.ID, extra.ID, model.ActionSend)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var count int64
	db.Model(&model.InterestEvent{}).Where("pair_key = ?", model.PairKey(sender.ID, extra.ID)).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestQuotaDoesNotCountAcceptsOrInbound(t *testing.T) {
	r, db, _ := newResolver(t)
	sender := testutil.CreateUser(t, db, "sender")
	ctx := context.Background()

	// Five inbound interests, all accepted: none of this spends quota.
	for i := 0; i < 5; i++ {
		other := testutil.CreateUser(t, db, fmt.Sprintf("admirer%d", i))
		_, err := r.ProposeAction(ctx, other.ID, sender.ID, model.ActionSend)
		require.NoError(t, err)
		_, err = r.ProposeAction(ctx, sender.ID, other.ID, model.ActionAccept)
		require.NoError(t, err)
	}

	target := testutil.CreateUser(t, db, "target")
	_, err := r.ProposeAction(ctx, sender.ID, target.ID, model.ActionSend)
	assert.NoError(t, err)
}

func TestQuotaPremiumUnlimited(t *testing.T) {
	r, db, subs := newResolver(t)
	sender := testutil.CreateUser(t, db, "sender")
	ctx := context.Background()

	_, err := subs.Activate(ctx, sender.ID, subscription.PlanPremium)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		target := testutil.CreateUser(t, db, fmt.Sprintf("target%d", i))
		_, err := r.ProposeAction(ctx, sender.ID, target.ID, model.ActionSend)
		require.NoError(t, err)
	}
}

func TestProposeConcurrentMutualSend(t *testing.T) {
	r, db, _ := newResolver(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = r.ProposeAction(ctx, a, b, model.ActionSend) }()
	go func() { defer wg.Done(); _, _ = r.ProposeAction(ctx, b, a, model.ActionSend) }()
	wg.Wait()

	state, err := r.CurrentState(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, state.Status)

	var count int64
	db.Model(&model.InterestEvent{}).Where("pair_key = ?", model.PairKey(a, b)).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestOverviewBuckets(t *testing.T) {
	r, db, _ := newResolver(t)
	me := testutil.CreateUser(t, db, "me")
	matched := testutil.CreateUser(t, db, "matched")
	admirer := testutil.CreateUser(t, db, "admirer")
	crush := testutil.CreateUser(t, db, "crush")
	rejected := testutil.CreateUser(t, db, "rejected")
	ctx := context.Background()

	_, err := r.ProposeAction(ctx, me.ID, matched.ID, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, matched.ID, me.ID, model.ActionAccept)
	require.NoError(t, err)

	_, err = r.ProposeAction(ctx, admirer.ID, me.ID, model.ActionSend)
	require.NoError(t, err)

	_, err = r.ProposeAction(ctx, me.ID, crush.ID, model.ActionSend)
	require.NoError(t, err)

	_, err = r.ProposeAction(ctx, rejected.ID, me.ID, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, me.ID, rejected.ID, model.ActionDecline)
	require.NoError(t, err)

	ov, err := r.Overview(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{matched.ID}, ov.Matches)
	assert.Equal(t, []int64{admirer.ID}, ov.Incoming)
	assert.Equal(t, []int64{crush.ID}, ov.Outgoing)
}

func TestLifecycleEventNames(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()
	center := notify.NewCenter()

	var mu sync.Mutex
	var fired []string
	record := func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		mu.Lock()
		fired = append(fired, event)
		mu.Unlock()
		return data, nil
	}
	for _, ev := range []string{
		notify.EventInterestSent,
		notify.EventInterestAccepted,
		notify.EventInterestDeclined,
		notify.EventInterestCancelled,
		notify.EventMatchCreated,
		notify.EventMatchDissolved,
	} {
		center.Register(ev, 10, "recorder", record)
	}

	r := NewResolver(db, NewLedger(db), subscription.NewService(db, logger), center, c, logger)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	// Accepting a pending interest creates the match, so both the
	// send and the accept resolve to match lifecycle events.
	_, err := r.ProposeAction(ctx, a, b, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, b, a, model.ActionAccept)
	require.NoError(t, err)

	// Dissolving and re-running the pair exercises the remaining names.
	_, err = r.ProposeAction(ctx, a, b, model.ActionCancel)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, b, a, model.ActionSend)
	require.NoError(t, err)
	_, err = r.ProposeAction(ctx, a, b, model.ActionDecline)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		notify.EventInterestSent,
		notify.EventMatchCreated,
		notify.EventMatchDissolved,
		notify.EventInterestSent,
		notify.EventInterestDeclined,
	}, fired)
}
