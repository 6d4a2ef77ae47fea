package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mohammad-safakhou/supportbot/models"
)

// AppendMessage stores a new message and returns it with its assigned id.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (models.Message, error) {
	if !role.Valid() {
		return models.Message{}, fmt.Errorf("store: append message: invalid role %q", role)
	}
	msg := models.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.timestamp(),
	}
	err := s.DB.QueryRowContext(ctx,
		s.rebind(`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		sessionID, string(role), content, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("store: append message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit messages older than beforeID, oldest first.
// beforeID <= 0 considers the whole session.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, beforeID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if beforeID > 0 {
		rows, err = s.DB.QueryContext(ctx, s.rebind(`SELECT id, session_id, role, content, created_at FROM messages
			WHERE session_id = ? AND id < ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`), sessionID, beforeID, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, s.rebind(`SELECT id, session_id, role, content, created_at FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`), sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns the full history of a session in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(`SELECT id, session_id, role, content, created_at FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return msgs, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	out := []models.Message{}
	for rows.Next() {
		var (
			msg  models.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}
