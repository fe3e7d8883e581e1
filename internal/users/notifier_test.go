package users

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/jobs"
)

type stubMailer struct {
	sent []jobs.SendEmailPayload
}

func (s *stubMailer) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	s.sent = append(s.sent, payload)
	return &asynq.TaskInfo{ID: "1"}, nil
}

func TestNotifyOverrideChangeEnqueuesMail(t *testing.T) {
	repo := newMockRepository()
	id, _ := repo.CreateUser(context.Background(), "rosa@taller.mx", "Rosa", "x", nil)
	mailer := &stubMailer{}
	n := NewPermissionMailNotifier(repo, mailer)

	require.NoError(t, n.NotifyOverrideChange(context.Background(), rbac.OverrideChange{UserID: id, Code: "ventas.ver", Granted: false}))
	require.NoError(t, n.NotifyOverrideChange(context.Background(), rbac.OverrideChange{UserID: id, Cleared: true}))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "rosa@taller.mx", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "se te retiró el permiso ventas.ver")
	assert.Contains(t, mailer.sent[1].Body, "restablecieron")
}

func TestNotifySkipsInactiveUsers(t *testing.T) {
	repo := newMockRepository()
	id, _ := repo.CreateUser(context.Background(), "paco@taller.mx", "Paco", "x", nil)
	_ = repo.SetActive(context.Background(), id, false)
	mailer := &stubMailer{}

	require.NoError(t, NewPermissionMailNotifier(repo, mailer).NotifyOverrideChange(context.Background(), rbac.OverrideChange{UserID: id, Code: "x.y", Granted: true}))
	assert.Empty(t, mailer.sent)

	err := NewPermissionMailNotifier(repo, mailer).NotifyOverrideChange(context.Background(), rbac.OverrideChange{UserID: 404})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
