package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingStore struct {
	events []Event
	err    error
	panic  bool
	ctxErr error
}

func (s *recordingStore) Insert(ctx context.Context, ev Event) error {
	if s.panic {
		panic("boom")
	}
	s.ctxErr = ctx.Err()
	s.events = append(s.events, ev)
	return s.err
}

func TestLogEventPersistsWithContextIP(t *testing.T) {
	store := &recordingStore{}
	l := NewLogger(store, nil)

	ctx := WithIP(context.Background(), "10.0.0.7")
	l.LogEvent(ctx, Event{UserID: 3, Action: "ROLE_CREATED", Table: "roles"})

	if assert.Len(t, store.events, 1) {
		assert.Equal(t, "10.0.0.7", store.events[0].IP)
		assert.Equal(t, int64(3), store.events[0].UserID)
	}
}

func TestLogEventSurvivesCancelledContext(t *testing.T) {
	store := &recordingStore{}
	l := NewLogger(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.LogEvent(ctx, Event{Action: "ACCESS_DENIED"})

	assert.Len(t, store.events, 1)
	assert.NoError(t, store.ctxErr)
}

func TestLogEventSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l := NewLogger(&recordingStore{err: errors.New("db down")}, logger)
	assert.NotPanics(t, func() { l.LogEvent(context.Background(), Event{Action: "ROLE_DISABLED"}) })
	assert.Contains(t, buf.String(), "audit log write failed")

	buf.Reset()
	l = NewLogger(&recordingStore{panic: true}, logger)
	assert.NotPanics(t, func() { l.LogEvent(context.Background(), Event{Action: "ROLE_DISABLED"}) })
	assert.Contains(t, buf.String(), "store panic")
}

func TestLogEventDropsEventsWithoutAction(t *testing.T) {
	store := &recordingStore{}
	NewLogger(store, nil).LogEvent(context.Background(), Event{UserID: 1})
	assert.Empty(t, store.events)

	var nilLogger *Logger
	assert.NotPanics(t, func() { nilLogger.LogEvent(context.Background(), Event{Action: "X"}) })
}
