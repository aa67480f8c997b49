package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/lendkeeper/internal/events"
	"github.com/and161185/lendkeeper/internal/model"
)

type sent struct {
	key     string
	payload []byte
}

type fakeSink struct {
	mu       sync.Mutex
	failures int
	attempts int
	got      []sent
	closed   bool
}

var _ Sink = (*fakeSink)(nil)

func (f *fakeSink) Send(_ context.Context, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("broker down")
	}
	f.got = append(f.got, sent{key: key, payload: payload})
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) snapshot() ([]sent, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.got...), f.attempts, f.closed
}

var at = time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)

func newRelay(sink Sink, log *zap.Logger) *Relay {
	r := New("test", sink, log)
	r.now = func() time.Time { return at }
	r.backoff = time.Millisecond
	return r
}

func start(r *Relay, src Source) (stop func(), done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() {
		r.Run(ctx, src)
		close(ch)
	}()
	return cancel, ch
}

func TestRelay_ForwardsInOrder(t *testing.T) {
	t.Parallel()
	bus := events.NewBus(nil)
	sub := bus.Subscribe(8)
	sink := &fakeSink{}
	stop, done := start(newRelay(sink, nil), sub)

	bus.Publish(model.AvailabilityEvent{BookID: 1, Available: false})
	bus.Publish(model.AvailabilityEvent{BookID: 1, Available: true})

	require.Eventually(t, func() bool {
		got, _, _ := sink.snapshot()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	stop()
	<-done
	got, _, closed := sink.snapshot()
	require.True(t, closed)
	require.Equal(t, "book-1", got[0].key)
	require.JSONEq(t, `{"book_id":1,"available":false,"at":"2024-01-20T10:00:00Z"}`, string(got[0].payload))
	require.JSONEq(t, `{"book_id":1,"available":true,"at":"2024-01-20T10:00:00Z"}`, string(got[1].payload))
}

func TestRelay_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	bus := events.NewBus(nil)
	sub := bus.Subscribe(8)
	sink := &fakeSink{failures: 2}
	_, done := start(newRelay(sink, nil), sub)

	bus.Publish(model.AvailabilityEvent{BookID: 7, Available: true})
	require.Eventually(t, func() bool {
		got, _, _ := sink.snapshot()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Close()
	<-done
	got, attempts, closed := sink.snapshot()
	require.Equal(t, 3, attempts)
	require.Equal(t, "book-7", got[0].key)
	require.True(t, closed, "a closed source stops the relay")
}

func TestRelay_SkipsAfterRetriesExhausted(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	bus := events.NewBus(nil)
	sub := bus.Subscribe(8)
	sink := &fakeSink{failures: -1}
	stop, done := start(newRelay(sink, zap.New(core)), sub)

	bus.Publish(model.AvailabilityEvent{BookID: 3, Available: false})
	bus.Publish(model.AvailabilityEvent{BookID: 4, Available: false})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("availability event not relayed").Len() == 2
	}, time.Second, 5*time.Millisecond)
	stop()
	<-done

	_, attempts, _ := sink.snapshot()
	require.Equal(t, 8, attempts, "one try plus three retries per event")
	entry := logs.FilterMessage("availability event not relayed").All()[0]
	require.Equal(t, int64(3), entry.ContextMap()["book_id"])
	require.Equal(t, "test", entry.ContextMap()["relay"])
}

func TestKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, "book-42", Key(42))
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

var _ Writer = (*fakeWriter)(nil)

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	t.Parallel()
	fw := &fakeWriter{}
	s := NewKafkaSinkWithWriter(fw)

	require.NoError(t, s.Send(context.Background(), "book-1", []byte(`{}`)))
	require.Len(t, fw.msgs, 1)
	require.Equal(t, []byte("book-1"), fw.msgs[0].Key)
	require.Equal(t, []byte(`{}`), fw.msgs[0].Value)

	require.NoError(t, s.Close())
	require.True(t, fw.closed)
}

func TestNewKafkaSink_ConfiguresWriter(t *testing.T) {
	t.Parallel()
	s := NewKafkaSink([]string{"k1:9092", "k2:9092"}, "avail")
	w, ok := s.w.(*kafka.Writer)
	require.True(t, ok)
	require.Equal(t, "avail", w.Topic)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
}

type fakePublisher struct {
	channel string
	message any
	err     error
	closed  bool
}

var _ Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestRedisSink(t *testing.T) {
	t.Parallel()
	fp := &fakePublisher{}
	s := NewRedisSink(fp, "avail")

	require.NoError(t, s.Send(context.Background(), "ignored", []byte(`{"book_id":1}`)))
	require.Equal(t, "avail", fp.channel)
	require.Equal(t, []byte(`{"book_id":1}`), fp.message)

	fp.err = errors.New("no connection")
	require.ErrorContains(t, s.Send(context.Background(), "", nil), "no connection")

	require.NoError(t, s.Close())
	require.True(t, fp.closed)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := NewRedisClient(context.Background(), "http://not-redis", nil)
	require.ErrorContains(t, err, "invalid url")
}
