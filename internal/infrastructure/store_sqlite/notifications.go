package store_sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notifications (id, name, event, payload, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		n.ID.String(), n.Name, string(n.Event), n.Payload, formatTime(n.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	for _, rc := range n.Recipients {
		var emailed any
		if rc.EmailedAt != nil {
			emailed = formatTime(*rc.EmailedAt)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notification_recipients (notification_id, user_id, emailed_at)
             VALUES (?, ?, ?)`,
			n.ID.String(), rc.UserID, emailed,
		)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification: %w", err)
	}
	return nil
}

func (s *Store) FindByName(ctx context.Context, name string) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, event, payload, created_at FROM notifications WHERE name = ?`, name)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	if err := s.loadRecipients(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) Pending(ctx context.Context) ([]domain.Notification, error) {
	return s.queryNotifications(ctx,
		`SELECT DISTINCT n.id, n.name, n.event, n.payload, n.created_at
         FROM notifications n
         JOIN notification_recipients r ON r.notification_id = n.id
         WHERE r.emailed_at IS NULL
         ORDER BY n.created_at`)
}

func (s *Store) OlderThan(ctx context.Context, t time.Time) ([]domain.Notification, error) {
	return s.queryNotifications(ctx,
		`SELECT id, name, event, payload, created_at
         FROM notifications WHERE created_at < ? ORDER BY created_at`,
		formatTime(t))
}

func (s *Store) AllNotifications(ctx context.Context) ([]domain.Notification, error) {
	return s.queryNotifications(ctx,
		`SELECT id, name, event, payload, created_at
         FROM notifications ORDER BY created_at`)
}

func (s *Store) MarkEmailed(ctx context.Context, id uuid.UUID, userIDs []int64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, uid := range userIDs {
		// Append-only: a recipient already stamped keeps its stamp.
		_, err = tx.ExecContext(ctx,
			`UPDATE notification_recipients SET emailed_at = ?
             WHERE notification_id = ? AND user_id = ? AND emailed_at IS NULL`,
			formatTime(at), id.String(), uid,
		)
		if err != nil {
			return fmt.Errorf("mark emailed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark: %w", err)
	}
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) HasForUser(ctx context.Context, userID int64, event domain.EventType) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1)
         FROM notifications n
         JOIN notification_recipients r ON r.notification_id = n.id
         WHERE n.event = ? AND r.user_id = ?`,
		string(event), userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("notification lookup for user: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadRecipients(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadRecipients(ctx context.Context, n *domain.Notification) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, emailed_at FROM notification_recipients
         WHERE notification_id = ? ORDER BY user_id`,
		n.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			rc      domain.Recipient
			emailed sql.NullString
		)
		if err := rows.Scan(&rc.UserID, &emailed); err != nil {
			return err
		}
		if emailed.Valid {
			t := parseTime(emailed.String)
			rc.EmailedAt = &t
		}
		n.Recipients = append(n.Recipients, rc)
	}
	return rows.Err()
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n       domain.Notification
		id      string
		event   string
		created string
	)
	if err := row.Scan(&id, &n.Name, &event, &n.Payload, &created); err != nil {
		return n, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return n, fmt.Errorf("notification id %q: %w", id, err)
	}
	n.ID = parsed
	n.Event = domain.EventType(event)
	n.CreatedAt = parseTime(created)
	return n, nil
}
