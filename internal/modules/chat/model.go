// README: Chat messages exchanged between a ride's passenger and driver.
package chat

import (
	"time"

	"bidride/internal/types"
)

type Message struct {
	ID         types.ID  `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	SenderID   types.ID  `json:"sender_id"`
	ReceiverID types.ID  `json:"receiver_id"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// MaxMessageLength bounds one message in runes.
const MaxMessageLength = 1000
