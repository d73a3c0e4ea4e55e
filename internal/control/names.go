package control

import (
	"strings"

	"github.com/dkeye/opentalk/internal/domain"
)

// PhoneBook resolves a caller's number to a display name.
type PhoneBook interface {
	PhoneNumberName(number string) (string, bool)
}

// DisplayName picks the name a participant joins with.
//
// Users get their account name, guests the requested name, SIP callers the
// phone book entry or a masked number and recorders a fixed sentinel. Empty or
// over-long results fall back to domain.DefaultDisplayName.
func DisplayName(p domain.Participant, user *domain.User, requested string, phones PhoneBook) string {
	var candidate string
	switch p.Kind {
	case domain.KindUser:
		if user != nil {
			candidate = user.DisplayName
		}
		if candidate == "" {
			candidate = requested
		}
	case domain.KindGuest:
		candidate = requested
	case domain.KindSip:
		if phones != nil {
			if name, ok := phones.PhoneNumberName(p.PhoneNumber); ok {
				candidate = name
			}
		}
		if candidate == "" {
			candidate = MaskPhoneNumber(p.PhoneNumber)
		}
	case domain.KindRecorder:
		return domain.RecorderName
	}
	name, err := domain.SanitizeDisplayName(candidate)
	if err != nil {
		return domain.DefaultDisplayName
	}
	return name
}

// MaskPhoneNumber keeps the last three digits visible.
func MaskPhoneNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 3 {
		return number
	}
	return strings.Repeat("*", len(number)-3) + number[len(number)-3:]
}
