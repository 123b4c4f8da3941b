package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// NotificationFactory creates deduplicated notification records for
// detected transition events.
type NotificationFactory struct {
	notifications domain.NotificationRepository
	log           *zap.Logger
}

func NewNotificationFactory(repo domain.NotificationRepository, log *zap.Logger) *NotificationFactory {
	return &NotificationFactory{notifications: repo, log: log}
}

// CreateIfAbsent persists a notification for the event unless one with
// the same dedup key is already live. The recipient set is fixed at
// creation time and not re-evaluated later.
func (f *NotificationFactory) CreateIfAbsent(ctx context.Context, ev domain.TransitionEvent, recipients []domain.User, payload any) (*domain.Notification, error) {
	name := ev.NotificationName()

	existing, err := f.notifications.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find notification %q: %w", name, err)
	}
	if existing != nil {
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	event := domain.EventBuildRecovered
	if ev.Kind == domain.TransitionFailed {
		event = domain.EventBuildFailed
	}

	n := domain.Notification{
		ID:        uuid.New(),
		Name:      name,
		Event:     event,
		Payload:   string(body),
		CreatedAt: time.Now().UTC(),
	}
	for _, u := range recipients {
		n.Recipients = append(n.Recipients, domain.Recipient{UserID: u.ID})
	}

	if err := f.notifications.CreateNotification(ctx, n); err != nil {
		// A concurrent pass won the check-then-create race; the event
		// is already notified.
		if errors.Is(err, domain.ErrDuplicate) {
			f.log.Debug("notification already exists", zap.String("name", name))
			return nil, nil
		}
		return nil, fmt.Errorf("create notification %q: %w", name, err)
	}

	f.log.Info("notification created",
		zap.String("name", name),
		zap.String("event", string(event)),
		zap.Int("recipients", len(n.Recipients)),
	)
	return &n, nil
}

// Dispatcher delivers pending notifications by mail and records the
// per-recipient delivery outcome.
type Dispatcher struct {
	notifications domain.NotificationRepository
	users         domain.UserRepository
	mail          domain.Mailer
	log           *zap.Logger
}

func NewDispatcher(n domain.NotificationRepository, u domain.UserRepository, m domain.Mailer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifications: n, users: u, mail: m, log: log}
}

// DispatchPending sends every emailable notification that still has
// eligible unserved recipients. One transport call per notification,
// addressed to the whole eligible subset. Returns the number sent.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.notifications.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}

	count := 0
	for _, n := range pending {
		if !n.Emailable() {
			continue
		}

		var (
			addrs   []string
			userIDs []int64
		)
		for _, rc := range n.Recipients {
			if rc.EmailedAt != nil {
				continue
			}
			u, err := d.users.User(ctx, rc.UserID)
			if err != nil {
				d.log.Warn("recipient lookup failed",
					zap.Int64("user", rc.UserID), zap.Error(err))
				continue
			}
			if !u.EmailNotifications || u.Email == "" {
				continue
			}
			addrs = append(addrs, u.Email)
			userIDs = append(userIDs, u.ID)
		}
		if len(addrs) == 0 {
			continue
		}

		deliveryID, err := d.mail.Send(ctx, n, addrs)
		if err != nil {
			d.log.Warn("notification send failed",
				zap.String("name", n.Name), zap.Error(err))
			continue
		}
		if deliveryID == "" {
			continue
		}

		if err := d.notifications.MarkEmailed(ctx, n.ID, userIDs, time.Now().UTC()); err != nil {
			d.log.Error("mark emailed failed",
				zap.String("name", n.Name), zap.Error(err))
			continue
		}
		d.log.Info("notification sent",
			zap.String("name", n.Name),
			zap.String("delivery", deliveryID),
			zap.Int("recipients", len(addrs)),
		)
		count++
	}

	return count, nil
}

// PurgeOlderThan deletes notifications created before now-retention.
// Deletion failures are logged per notification and do not stop the
// sweep. Returns the number deleted.
func (d *Dispatcher) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	old, err := d.notifications.OlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list old notifications: %w", err)
	}

	count := 0
	for _, n := range old {
		if err := d.notifications.DeleteNotification(ctx, n.ID); err != nil {
			d.log.Error("delete notification failed",
				zap.String("name", n.Name), zap.Error(err))
			continue
		}
		count++
	}
	d.log.Info("notification cleanup completed", zap.Int("deleted", count))
	return count, nil
}

// CheckMissingEmail flags users that have no configured email address,
// once per user, via a non-emailable notification kind.
func (d *Dispatcher) CheckMissingEmail(ctx context.Context) error {
	users, err := d.users.AllUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var missing []domain.User
	for _, u := range users {
		if u.Email != "" {
			continue
		}
		flagged, err := d.notifications.HasForUser(ctx, u.ID, domain.EventUnconfiguredEmail)
		if err != nil {
			d.log.Warn("unconfigured-email lookup failed",
				zap.Int64("user", u.ID), zap.Error(err))
			continue
		}
		if !flagged {
			missing = append(missing, u)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	n := domain.Notification{
		ID:        uuid.New(),
		Event:     domain.EventUnconfiguredEmail,
		Payload:   "{}",
		CreatedAt: time.Now().UTC(),
	}
	n.Name = "unconfigured-email " + n.ID.String()
	for _, u := range missing {
		n.Recipients = append(n.Recipients, domain.Recipient{UserID: u.ID})
	}
	if err := d.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create unconfigured-email notification: %w", err)
	}
	d.log.Info("flagged users without notification email", zap.Int("users", len(missing)))
	return nil
}
