package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/companion-labs/companion-messaging/internal/model"
)

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FetchDuePending(ctx context.Context, now time.Time, limit int) ([]model.PendingReply, error) {
	query := `
		SELECT id, recipient_phone, sender_phone, user_id, number_id,
		       body, due_at, status, created_at, updated_at, delivered_at
		FROM pending_replies
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at ASC, id ASC
	`
	args := []any{now.UTC()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingReply
	for rows.Next() {
		var r model.PendingReply
		var status string
		var deliveredAt sql.NullTime
		if err := rows.Scan(
			&r.ID,
			&r.RecipientPhone,
			&r.SenderPhone,
			&r.UserID,
			&r.NumberID,
			&r.Body,
			&r.DueAt,
			&status,
			&r.CreatedAt,
			&r.UpdatedAt,
			&deliveredAt,
		); err != nil {
			return nil, err
		}
		r.Status = model.Status(status)
		if deliveredAt.Valid {
			t := deliveredAt.Time
			r.DeliveredAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) VoidReplies(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE pending_replies
		SET status = 'void', updated_at = now()
		WHERE status = 'pending' AND id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_replies
		SET status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) InsertPending(ctx context.Context, reply model.PendingReply) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_replies
			(recipient_phone, sender_phone, user_id, number_id, body, due_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now(), now())
		RETURNING id
	`,
		reply.RecipientPhone,
		reply.SenderPhone,
		reply.UserID,
		reply.NumberID,
		reply.Body,
		reply.DueAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) InsertLogEntry(ctx context.Context, entry model.MessageLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_log
			(recipient_phone, sender_phone, body, direction, user_id, number_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`,
		entry.RecipientPhone,
		entry.SenderPhone,
		entry.Body,
		string(entry.Direction),
		entry.UserID,
		entry.NumberID,
	)
	return err
}

func (s *PostgresStore) ListLog(ctx context.Context, direction model.Direction, limit, offset int) ([]model.MessageLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, recipient_phone, sender_phone, body, direction, user_id, number_id, created_at
		FROM message_log
	`
	args := []any{}
	if direction != "" {
		query += ` WHERE direction = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		args = append(args, string(direction), limit, offset)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageLogEntry
	for rows.Next() {
		var e model.MessageLogEntry
		var dir string
		if err := rows.Scan(
			&e.ID,
			&e.RecipientPhone,
			&e.SenderPhone,
			&e.Body,
			&dir,
			&e.UserID,
			&e.NumberID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Direction = model.Direction(dir)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResolveChannelOwner(ctx context.Context, endpoint string) (model.ChannelOwner, error) {
	var owner model.ChannelOwner
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, id
		FROM companion_numbers
		WHERE phone = $1 AND active
	`, endpoint).Scan(&owner.UserID, &owner.NumberID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChannelOwner{}, ErrChannelNotFound
	}
	if err != nil {
		return model.ChannelOwner{}, err
	}
	return owner, nil
}
