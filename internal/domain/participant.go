package domain

import "fmt"

// ParticipationKind is the tag of the Participant union.
type ParticipationKind string

const (
	KindUser     ParticipationKind = "user"
	KindGuest    ParticipationKind = "guest"
	KindSip      ParticipationKind = "sip"
	KindRecorder ParticipationKind = "recorder"
)

// Participant is who is behind a signaling session.
// User carries the account id; Sip carries the caller's number.
type Participant struct {
	Kind        ParticipationKind `json:"kind"`
	User        UserID            `json:"user,omitempty"`
	PhoneNumber string            `json:"phone_number,omitempty"`
}

func UserParticipant(id UserID) Participant {
	return Participant{Kind: KindUser, User: id}
}

func GuestParticipant() Participant { return Participant{Kind: KindGuest} }

func SipParticipant(number string) Participant {
	return Participant{Kind: KindSip, PhoneNumber: number}
}

func RecorderParticipant() Participant { return Participant{Kind: KindRecorder} }

func (p Participant) IsUser() bool { return p.Kind == KindUser }

// Equal reports whether both values describe the same principal.
func (p Participant) Equal(other Participant) bool {
	return p.Kind == other.Kind && p.User == other.User && p.PhoneNumber == other.PhoneNumber
}

func (p Participant) String() string {
	switch p.Kind {
	case KindUser:
		return fmt.Sprintf("user(%s)", p.User)
	case KindSip:
		return "sip"
	default:
		return string(p.Kind)
	}
}
