package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/messaging"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type scriptedMessenger struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedMessenger) Send(context.Context, string, string, map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func requestMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(messaging.NotificationRequest{
		ID:          "req-1",
		Address:     "p1@home.test",
		TemplateID:  domain.TemplateGradeNotification,
		Data:        map[string]any{"title": "Fractions", "grade": "A"},
		RequestedAt: time.Now(),
	})
	require.NoError(t, err)
	return kafka.Message{Topic: "gradebook.notifications", Offset: offset, Value: value}
}

func TestConsumer_RetriesTransportFailures(t *testing.T) {
	m := &scriptedMessenger{errs: []error{errors.New("connection reset")}}
	c := NewConsumer(&fakeReader{}, m, zap.NewNop(), 3, time.Millisecond)

	c.handle(context.Background(), requestMessage(t, 1))
	assert.Equal(t, 2, m.calls)
}

func TestConsumer_DoesNotRetryRejections(t *testing.T) {
	m := &scriptedMessenger{errs: []error{messaging.Reject("550 mailbox unavailable", nil)}}
	c := NewConsumer(&fakeReader{}, m, zap.NewNop(), 3, time.Millisecond)

	c.handle(context.Background(), requestMessage(t, 1))
	assert.Equal(t, 1, m.calls)
}

func TestConsumer_SkipsMalformedMessages(t *testing.T) {
	m := &scriptedMessenger{}
	c := NewConsumer(&fakeReader{}, m, zap.NewNop(), 3, time.Millisecond)

	c.handle(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Zero(t, m.calls)
}

func TestConsumer_RunCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		requestMessage(t, 1),
		{Offset: 2, Value: []byte("garbage")},
		requestMessage(t, 3),
	}}
	m := &scriptedMessenger{}
	c := NewConsumer(reader, m, zap.NewNop(), 1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return reader.commits() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 2, m.calls)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("NOTIFIER_BACKOFF", "2s")

	cfg, err := loadConfig("./testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.Backoff)
	assert.Equal(t, "gradebook.notifications", cfg.Topic)
	assert.Equal(t, 3, cfg.MaxAttempts)
}
