package chat

import "time"

const (
	ActionSendMessage          = "send_message"
	ActionEnableChat           = "enable_chat"
	ActionDisableChat          = "disable_chat"
	ActionClearHistory         = "clear_history"
	ActionSetLastSeenTimestamp = "set_last_seen_timestamp"
)

// Scope selects who receives a message.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// SendMessage carries the group name or the participant id in Target for
// group and private scopes.
type SendMessage struct {
	Action  string `json:"action"`
	Content string `json:"content" validate:"required"`
	Scope   Scope  `json:"scope" validate:"oneof=global group private"`
	Target  string `json:"target,omitempty" validate:"required_unless=Scope global"`
}

type SetLastSeenTimestamp struct {
	Action    string    `json:"action"`
	Scope     Scope     `json:"scope" validate:"oneof=global group private"`
	Target    string    `json:"target,omitempty" validate:"required_unless=Scope global"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}
