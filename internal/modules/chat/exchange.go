package chat

import (
	"time"

	"github.com/dkeye/opentalk/internal/domain"
)

// StoredMessage is kept in the history lists and travels over the exchange
// as the body of message_sent.
type StoredMessage struct {
	ID        string               `json:"id"`
	Source    domain.ParticipantID `json:"source"`
	Timestamp time.Time            `json:"timestamp"`
	Content   string               `json:"content"`
	Scope     Scope                `json:"scope"`
	Target    string               `json:"target,omitempty"`
}

func (m StoredMessage) sent() MessageSent {
	return MessageSent{Message: MsgMessageSent, StoredMessage: m}
}
