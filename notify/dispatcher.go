package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rahmahapps/mawadda-server/cache"
	"github.com/rahmahapps/mawadda-server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChannelFor returns the pub/sub channel carrying a user's notifications.
func ChannelFor(userID int64) string {
	return fmt.Sprintf("notify:%d", userID)
}

// Config holds dispatcher settings.
type Config struct {
	QueueSize    int           `mapstructure:"queue_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type delivery struct {
	userID   int64
	kind     string
	payload  []byte
	attempts int
}

// Dispatcher persists notifications and pushes them to per-user pub/sub
// channels for SSE delivery. Deliveries are queued and retried here, never
// by the caller: the interest resolver fires and forgets.
type Dispatcher struct {
	db          *gorm.DB
	pubsub      cache.PubSub
	ch          chan *delivery
	stopCh      chan struct{}
	wg          sync.WaitGroup
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher and starts its background worker.
func NewDispatcher(db *gorm.DB, pubsub cache.PubSub, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	d := &Dispatcher{
		db:          db,
		pubsub:      pubsub,
		ch:          make(chan *delivery, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		logger:      logger,
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Attach registers the dispatcher on the center for every interest
// lifecycle event.
func (d *Dispatcher) Attach(c *Center) {
	for _, event := range []string{
		EventInterestSent,
		EventInterestAccepted,
		EventInterestDeclined,
		EventInterestCancelled,
		EventMatchCreated,
		EventMatchDissolved,
	} {
		c.Register(event, 100, "dispatcher", d.handle)
	}
}

// handle fans an event out to its recipients.
func (d *Dispatcher) handle(_ context.Context, event string, data interface{}) (interface{}, error) {
	in, ok := data.(InterestData)
	if !ok {
		d.logger.Warn("notify: unexpected payload type", zap.String("event", event))
		return data, nil
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return data, nil
	}
	for _, uid := range recipients(event, in) {
		d.enqueue(&delivery{userID: uid, kind: event, payload: payload})
	}
	return data, nil
}

// recipients decides who gets told about an event. Actions that land on one
// side notify the counterpart; match events notify both parties.
func recipients(event string, in InterestData) []int64 {
	switch event {
	case EventMatchCreated, EventMatchDissolved:
		return []int64{in.ActorID, in.TargetID}
	default:
		return []int64{in.TargetID}
	}
}

func (d *Dispatcher) enqueue(dl *delivery) {
	select {
	case d.ch <- dl:
	default:
		d.logger.Warn("notify queue full, dropping delivery",
			zap.Int64("user_id", dl.userID), zap.String("kind", dl.kind))
	}
}

// Stop drains the queue and shuts down the worker.
func (d *Dispatcher) Stop() {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case dl := <-d.ch:
			d.deliver(dl)
		case <-d.stopCh:
			for {
				select {
				case dl := <-d.ch:
					d.deliver(dl)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(dl *delivery) {
	dl.attempts++
	if err := d.attempt(dl); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.Int64("user_id", dl.userID),
			zap.String("kind", dl.kind),
			zap.Int("attempt", dl.attempts),
			zap.Error(err))
		if dl.attempts < d.maxAttempts {
			// Requeue after the backoff; give up once attempts run out.
			time.AfterFunc(d.backoff, func() { d.enqueue(dl) })
		}
	}
}

func (d *Dispatcher) attempt(dl *delivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := &model.Notification{
		UserID:  dl.userID,
		Kind:    dl.kind,
		Payload: datatypes.JSON(dl.payload),
	}
	if err := d.db.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	out, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.pubsub.Publish(ctx, ChannelFor(dl.userID), string(out))
}
