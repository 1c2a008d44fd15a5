// README: Chat service; only the two parties of an assigned ride may talk.
package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"bidride/internal/apperr"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

type Repository interface {
	Insert(ctx context.Context, m *Message) error
	ListByRide(ctx context.Context, rideID types.ID) ([]Message, error)
	MarkRead(ctx context.Context, rideID, receiverID types.ID) (int64, error)
}

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	repo  Repository
	rides Rides
	now   func() time.Time
}

func NewService(repo Repository, rides Rides) *Service {
	return &Service{repo: repo, rides: rides, now: time.Now}
}

func (s *Service) Send(ctx context.Context, rideID, senderID types.ID, text string) (*Message, error) {
	const op = "chat.send"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation(op, "empty message")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperr.Validation(op, "message too long")
	}
	r, err := s.party(ctx, op, rideID, senderID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == nil {
		return nil, apperr.Rejected(op, "no driver assigned yet")
	}
	m := &Message{
		ID:         types.NewID(),
		RideID:     rideID,
		SenderID:   senderID,
		ReceiverID: otherParty(r, senderID),
		Message:    text,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, apperr.Store(op, err)
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, rideID, userID types.ID) ([]Message, error) {
	if _, err := s.party(ctx, "chat.list", rideID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListByRide(ctx, rideID)
	if err != nil {
		return nil, apperr.Store("chat.list", err)
	}
	return msgs, nil
}

// MarkRead marks everything the user has received on the ride as read.
func (s *Service) MarkRead(ctx context.Context, rideID, userID types.ID) (int64, error) {
	if _, err := s.party(ctx, "chat.mark_read", rideID, userID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, rideID, userID)
	if err != nil {
		return 0, apperr.Store("chat.mark_read", err)
	}
	return n, nil
}

func (s *Service) party(ctx context.Context, op string, rideID, userID types.ID) (*ride.Ride, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(userID) {
		return nil, apperr.Forbidden(op, "not a party to this ride")
	}
	return r, nil
}

func otherParty(r *ride.Ride, userID types.ID) types.ID {
	if r.PassengerID == userID {
		return *r.DriverID
	}
	return r.PassengerID
}
