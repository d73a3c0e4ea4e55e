package domain

// RoomInfo is the directory view of a room as exposed in join_success.
type RoomInfo struct {
	ID           RoomID `json:"id"`
	Title        string `json:"title,omitempty"`
	CreatedBy    UserID `json:"created_by"`
	Password     string `json:"-"`
	WaitingRoom  bool   `json:"waiting_room"`
	E2EEncrypted bool   `json:"e2e_encryption"`
}

// IsOwner reports whether p created the room.
func (r RoomInfo) IsOwner(p Participant) bool {
	return p.IsUser() && r.CreatedBy != "" && p.User == r.CreatedBy
}

// Tariff limits what a room may use.
type Tariff struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Quotas  map[string]int64 `json:"quotas,omitempty"`
	Modules []string         `json:"modules,omitempty"`
}

// Allows reports whether module namespace is enabled. An empty list allows
// every module.
func (t Tariff) Allows(namespace string) bool {
	if len(t.Modules) == 0 {
		return true
	}
	for _, m := range t.Modules {
		if m == namespace {
			return true
		}
	}
	return false
}

// EventInfo is the calendar event a room belongs to, if any.
type EventInfo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	IsAdhoc bool   `json:"is_adhoc"`
}
