package domain

type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
)

func (r Role) IsModerator() bool { return r == RoleModerator }

// DefaultRole is the role a participant gets on join before any grant.
func DefaultRole(p Participant, isRoomOwner bool) Role {
	switch {
	case isRoomOwner:
		return RoleModerator
	case p.Kind == KindUser:
		return RoleUser
	default:
		return RoleGuest
	}
}
