package chat

import (
	"time"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgMessageSent    = "message_sent"
	MsgChatEnabled    = "chat_enabled"
	MsgChatDisabled   = "chat_disabled"
	MsgHistoryCleared = "history_cleared"
)

var (
	ErrChatDisabled   = core.NewError("chat_disabled")
	ErrInvalidScope   = core.NewError("invalid_scope")
	ErrMessageTooLong = core.NewError("message_too_long")
)

type MessageSent struct {
	Message string `json:"message"`
	StoredMessage
}

// Issued announces a moderator action.
type Issued struct {
	Message  string               `json:"message"`
	IssuedBy domain.ParticipantID `json:"issued_by"`
}

type GroupHistory struct {
	Name    string          `json:"name"`
	History []StoredMessage `json:"history"`
}

type PrivateHistory struct {
	Correspondent domain.ParticipantID `json:"correspondent"`
	History       []StoredMessage      `json:"history"`
}

// FrontendData is the chat part of join_success.
type FrontendData struct {
	Enabled                   bool                               `json:"enabled"`
	RoomHistory               []StoredMessage                    `json:"room_history"`
	GroupsHistory             []GroupHistory                     `json:"groups_history"`
	PrivateHistory            []PrivateHistory                   `json:"private_history"`
	LastSeenTimestampGlobal   *time.Time                         `json:"last_seen_timestamp_global,omitempty"`
	LastSeenTimestampsGroup   map[string]time.Time               `json:"last_seen_timestamps_group,omitempty"`
	LastSeenTimestampsPrivate map[domain.ParticipantID]time.Time `json:"last_seen_timestamps_private,omitempty"`
}
