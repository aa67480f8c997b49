// Package relay forwards availability events from the in-process bus to external brokers.
package relay

import (
	"context"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/lendkeeper/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the payload written to every sink.
type Message struct {
	BookID    int64     `json:"book_id"`
	Available bool      `json:"available"`
	At        time.Time `json:"at"`
}

// Sink delivers one message to an external system.
type Sink interface {
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Source yields bus events until it is closed.
type Source interface {
	Events() <-chan model.AvailabilityEvent
}

// Relay pumps events from a source into a sink.
type Relay struct {
	name       string
	sink       Sink
	log        *zap.Logger
	now        func() time.Time
	maxRetries uint64
	backoff    time.Duration
}

// New constructs a relay. name labels its log lines.
func New(name string, sink Sink, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		name:       name,
		sink:       sink,
		log:        log.With(zap.String("relay", name)),
		now:        time.Now,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// Run forwards events until ctx is done or src is closed. A message that still fails after
// retries is logged and skipped. The sink is closed on return.
func (r *Relay) Run(ctx context.Context, src Source) {
	defer func() {
		if err := r.sink.Close(); err != nil {
			r.log.Warn("close sink", zap.Error(err))
		}
	}()
	r.log.Info("relay started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return
		case ev, ok := <-src.Events():
			if !ok {
				r.log.Info("relay source closed")
				return
			}
			if err := r.forward(ctx, ev); err != nil && ctx.Err() == nil {
				r.log.Warn("availability event not relayed",
					zap.Int64("book_id", ev.BookID),
					zap.Bool("available", ev.Available),
					zap.Error(err),
				)
			}
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev model.AvailabilityEvent) error {
	payload, err := Encode(ev, r.now())
	if err != nil {
		return err
	}
	key := Key(ev.BookID)
	b := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.sink.Send(ctx, key, payload); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Encode renders ev as a JSON message stamped with at.
func Encode(ev model.AvailabilityEvent, at time.Time) ([]byte, error) {
	return json.Marshal(Message{BookID: ev.BookID, Available: ev.Available, At: at.UTC()})
}

// Key partitions messages by book so one book's transitions stay ordered.
func Key(bookID int64) string {
	return "book-" + strconv.FormatInt(bookID, 10)
}
