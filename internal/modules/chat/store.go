// README: Chat store backed by PostgreSQL; rows are never deleted.
package chat

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"bidride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, m *Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages (id, ride_id, sender_id, receiver_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)`,
		string(m.ID), string(m.RideID), string(m.SenderID), string(m.ReceiverID), m.Message, m.CreatedAt,
	)
	return err
}

func (s *Store) ListByRide(ctx context.Context, rideID types.ID) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, sender_id, receiver_id, message, is_read, created_at
		FROM chat_messages
		WHERE ride_id = $1
		ORDER BY created_at, id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var id, ride, sender, receiver string
		if err := rows.Scan(&id, &ride, &sender, &receiver, &m.Message, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID, m.RideID, m.SenderID, m.ReceiverID = types.ID(id), types.ID(ride), types.ID(sender), types.ID(receiver)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead flips the read flag on every unread message addressed to receiverID.
func (s *Store) MarkRead(ctx context.Context, rideID, receiverID types.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_messages SET is_read = true
		WHERE ride_id = $1 AND receiver_id = $2 AND NOT is_read`,
		string(rideID), string(receiverID))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
