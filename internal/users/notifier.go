package users

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/jobs"
)

// Mailer enqueues e-mail delivery. *jobs.Client satisfies it.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// PermissionMailNotifier tells users by e-mail when an administrator changes
// their permission overrides.
type PermissionMailNotifier struct {
	users  RepositoryPort
	mailer Mailer
}

// NewPermissionMailNotifier constructs a notifier.
func NewPermissionMailNotifier(users RepositoryPort, mailer Mailer) *PermissionMailNotifier {
	return &PermissionMailNotifier{users: users, mailer: mailer}
}

// NotifyOverrideChange implements rbac.Notifier.
func (n *PermissionMailNotifier) NotifyOverrideChange(ctx context.Context, change rbac.OverrideChange) error {
	user, err := n.users.GetUser(ctx, change.UserID)
	if err != nil {
		return err
	}
	if !user.IsActive || user.Email == "" {
		return nil
	}
	_, err = n.mailer.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: "Cambio en tus permisos",
		Body:    overrideMessage(user.Name, change),
	})
	return err
}

func overrideMessage(name string, change rbac.OverrideChange) string {
	switch {
	case change.Cleared && change.Code == "":
		return fmt.Sprintf("Hola %s, tus permisos se restablecieron a los de tu rol.", name)
	case change.Cleared:
		return fmt.Sprintf("Hola %s, el permiso %s vuelve a depender de tu rol.", name, change.Code)
	case change.Granted:
		return fmt.Sprintf("Hola %s, se te otorgó el permiso %s.", name, change.Code)
	default:
		return fmt.Sprintf("Hola %s, se te retiró el permiso %s.", name, change.Code)
	}
}

var _ rbac.Notifier = (*PermissionMailNotifier)(nil)
