package store_sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, email_notifications) VALUES (?, ?, ?)`,
		u.Username, u.Email, boolToInt(u.EmailNotifications),
	)
	if isUniqueViolation(err) {
		return 0, domain.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) User(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, email_notifications FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) AllUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email, email_notifications FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) Subscribe(ctx context.Context, workflow uuid.UUID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (workflow_uuid, user_id) VALUES (?, ?)`,
		workflow.String(), userID,
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (s *Store) Subscribers(ctx context.Context, workflow uuid.UUID) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.email_notifications
         FROM users u
         JOIN subscriptions s ON s.user_id = u.id
         WHERE s.workflow_uuid = ?
         ORDER BY u.id`,
		workflow.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u        domain.User
		notifies int
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &notifies); err != nil {
		return u, err
	}
	u.EmailNotifications = notifies != 0
	return u, nil
}
