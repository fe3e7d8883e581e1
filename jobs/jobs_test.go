package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/taller-erp/taller/internal/jobs"
)

type stubPruner struct {
	now       time.Time
	retention time.Duration
	removed   int64
	err       error
}

func (s *stubPruner) Prune(_ context.Context, now time.Time, retention time.Duration) (int64, error) {
	s.now = now
	s.retention = retention
	return s.removed, s.err
}

func TestAuditPruneUsesConfiguredRetention(t *testing.T) {
	pruner := &stubPruner{removed: 4}
	job := NewAuditPruneJob(pruner, 180*24*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	fixed := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewAuditPruneTask(AuditPrunePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, fixed, pruner.now)
	assert.Equal(t, 180*24*time.Hour, pruner.retention)
}

func TestAuditPrunePayloadOverridesRetention(t *testing.T) {
	pruner := &stubPruner{}
	job := NewAuditPruneJob(pruner, 180*24*time.Hour, nil, nil)

	task, err := NewAuditPruneTask(AuditPrunePayload{RetentionDays: 30})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 30*24*time.Hour, pruner.retention)
}

func TestAuditPruneFailurePropagates(t *testing.T) {
	boom := errors.New("db down")
	job := NewAuditPruneJob(&stubPruner{err: boom}, time.Hour, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPrune, nil))
	assert.ErrorIs(t, err, boom)
}

func TestAuditPruneRejectsBadPayload(t *testing.T) {
	job := NewAuditPruneJob(&stubPruner{}, time.Hour, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPrune, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type captureSender struct {
	sent []SendEmailPayload
	err  error
}

func (c *captureSender) Send(_ context.Context, msg SendEmailPayload) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func TestSendEmailJobDeliversPayload(t *testing.T) {
	sender := &captureSender{}
	job := &SendEmailJob{Sender: sender}

	task, err := NewSendEmailTask(SendEmailPayload{To: "ana@taller.local", Subject: "Permisos", Body: "hola"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@taller.local", sender.sent[0].To)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPSenderFormatsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	sender := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: 2525, From: "noreply@taller.local"})
	sender.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := sender.Send(context.Background(), SendEmailPayload{To: "ana@taller.local", Subject: "Cambio\nde permisos", Body: "linea 1\nlinea 2"})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ana@taller.local"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Cambio de permisos\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "linea 1\r\nlinea 2"))

	assert.Error(t, sender.Send(context.Background(), SendEmailPayload{To: " "}))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "default", body["queue"])
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsBacklog(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 2, Archived: 1}}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 4, Retry: 2, Archived: 1}, body)

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
