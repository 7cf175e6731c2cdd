package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rahmahapps/mawadda-server/cache"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/notify"
	"github.com/rahmahapps/mawadda-server/subscription"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lockStripes is the size of the in-process lock table. Both user IDs of a
// pair are locked (smaller stripe first) so every action touching either
// user is serialized, which also serializes quota accounting per user.
const lockStripes = 64

const pairLockTTL = 10 * time.Second

// Resolver is the interest state machine. It turns a user action into a
// validated ledger event and the resulting relationship state, always
// re-deriving state from the ledger rather than any cached copy.
type Resolver struct {
	db     *gorm.DB
	ledger *Ledger
	subs   *subscription.Service
	center *notify.Center
	cache  cache.Cache
	locks  [lockStripes]sync.Mutex
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(
	db *gorm.DB,
	ledger *Ledger,
	subs *subscription.Service,
	center *notify.Center,
	c cache.Cache,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		db:     db,
		ledger: ledger,
		subs:   subs,
		center: center,
		cache:  c,
		logger: logger,
	}
}

// CurrentState returns the relationship between two users, derived by
// replaying their ledger events. Pure read, symmetric in its arguments.
func (r *Resolver) CurrentState(ctx context.Context, a, b int64) (Relationship, error) {
	events, err := r.ledger.EventsForPair(ctx, a, b)
	if err != nil {
		return None, err
	}
	return Replay(events), nil
}

// ProposeAction validates and records an interest action by actor toward
// target, returning the resulting relationship state. Concurrent calls on
// the same pair are serialized; quota check and ledger append commit as one
// transaction. Notification failures never affect the result.
func (r *Resolver) ProposeAction(ctx context.Context, actor, target int64, action string) (Relationship, error) {
	if actor <= 0 || target <= 0 || actor == target {
		return None, fmt.Errorf("%w: actor=%d target=%d", ErrInvalidEvent, actor, target)
	}
	switch action {
	case model.ActionSend, model.ActionAccept, model.ActionDecline, model.ActionCancel:
	default:
		return None, fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, action)
	}

	unlock := r.lockPair(actor, target)
	defer unlock()

	// Cross-instance guard, same idiom as a two-party commit: whoever holds
	// the pair key proceeds, everyone else fails fast and may re-propose.
	lockKey := "lock:interest:" + model.PairKey(actor, target)
	ok, err := r.cache.SetNX(ctx, lockKey, "1", pairLockTTL)
	if err != nil {
		return None, fmt.Errorf("%w: pair lock: %v", ErrStorage, err)
	}
	if !ok {
		return None, fmt.Errorf("%w: pair busy", ErrStorage)
	}
	defer r.cache.Del(ctx, lockKey)

	var result, prior Relationship
	var ev *model.InterestEvent
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := r.ledger.WithTx(tx)

		events, err := ledger.EventsForPair(ctx, actor, target)
		if err != nil {
			return err
		}
		cur := Replay(events)
		prior = cur

		nxt, err := next(cur, actor, action)
		if err != nil {
			return err
		}

		if action == model.ActionSend {
			if err := r.checkQuota(ctx, ledger, actor); err != nil {
				return err
			}
		}

		ev = &model.InterestEvent{
			FromUserID: actor,
			ToUserID:   target,
			Action:     action,
		}
		if err := ledger.Append(ctx, ev); err != nil {
			return err
		}
		result = nxt
		return nil
	})
	if txErr != nil {
		return None, txErr
	}

	r.emit(ctx, ev, prior, result)
	return result, nil
}

// checkQuota rejects a send beyond the actor's plan allowance for the
// current billing period. Runs inside the append transaction.
func (r *Resolver) checkQuota(ctx context.Context, ledger *Ledger, actor int64) error {
	_, plan, err := r.subs.Current(ctx, actor)
	if err != nil {
		return fmt.Errorf("%w: subscription lookup: %v", ErrStorage, err)
	}
	if plan.Unlimited() {
		return nil
	}
	since, err := r.subs.PeriodStart(ctx, actor, time.Now())
	if err != nil {
		return fmt.Errorf("%w: period lookup: %v", ErrStorage, err)
	}
	sent, err := ledger.CountSendsSince(ctx, actor, since)
	if err != nil {
		return err
	}
	if sent >= int64(plan.InterestAllowance) {
		return fmt.Errorf("%w: %d of %d interests used this period",
			ErrQuotaExceeded, sent, plan.InterestAllowance)
	}
	return nil
}

// emit fires the lifecycle event for a recorded action. Best effort: the
// ledger write already committed and is never rolled back here.
func (r *Resolver) emit(ctx context.Context, ev *model.InterestEvent, prior, result Relationship) {
	event := eventName(ev.Action, prior, result)
	data := notify.InterestData{
		EventUID: ev.EventUID,
		ActorID:  ev.FromUserID,
		TargetID: ev.ToUserID,
		Action:   ev.Action,
		Status:   string(result.Status),
	}
	if _, err := r.center.Trigger(ctx, event, data); err != nil {
		r.logger.Warn("interest notification failed",
			zap.String("event", event),
			zap.String("event_uid", ev.EventUID),
			zap.Error(err))
	}
}

// eventName maps a recorded action to the notification event it raises.
// A cancel that dissolves a match is distinguished from one withdrawing a
// pending interest by the state it acted on.
func eventName(action string, prior, result Relationship) string {
	switch action {
	case model.ActionSend:
		if result.Status == StatusMatched {
			return notify.EventMatchCreated
		}
		return notify.EventInterestSent
	case model.ActionAccept:
		if result.Status == StatusMatched {
			return notify.EventMatchCreated
		}
		return notify.EventInterestAccepted
	case model.ActionDecline:
		return notify.EventInterestDeclined
	default:
		if prior.Status == StatusMatched {
			return notify.EventMatchDissolved
		}
		return notify.EventInterestCancelled
	}
}

// lockPair acquires the stripes for both users in ascending order and
// returns the matching unlock.
func (r *Resolver) lockPair(a, b int64) func() {
	i := int(a % lockStripes)
	j := int(b % lockStripes)
	if i > j {
		i, j = j, i
	}
	r.locks[i].Lock()
	if j != i {
		r.locks[j].Lock()
	}
	return func() {
		if j != i {
			r.locks[j].Unlock()
		}
		r.locks[i].Unlock()
	}
}

// Overview buckets a user's counterparts by current relationship, for the
// matches / received / sent lists.
type Overview struct {
	Matches  []int64 `json:"matches"`
	Incoming []int64 `json:"incoming"`
	Outgoing []int64 `json:"outgoing"`
}

// Overview computes the relationship buckets for every counterpart the user
// has ledger history with.
func (r *Resolver) Overview(ctx context.Context, userID int64) (Overview, error) {
	events, err := r.ledger.EventsForUser(ctx, userID)
	if err != nil {
		return Overview{}, err
	}

	seen := make(map[int64]bool)
	var counterparts []int64
	for _, ev := range events {
		other := ev.FromUserID
		if other == userID {
			other = ev.ToUserID
		}
		if !seen[other] {
			seen[other] = true
			counterparts = append(counterparts, other)
		}
	}

	var ov Overview
	for _, other := range counterparts {
		state, err := r.CurrentState(ctx, userID, other)
		if err != nil {
			return Overview{}, err
		}
		switch state.Status {
		case StatusMatched:
			ov.Matches = append(ov.Matches, other)
		case StatusPending:
			if state.SenderID == userID {
				ov.Outgoing = append(ov.Outgoing, other)
			} else {
				ov.Incoming = append(ov.Incoming, other)
			}
		}
	}
	return ov, nil
}
