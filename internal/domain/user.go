// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen  = 100
	DefaultDisplayName = "Participant"
	RecorderName       = "Recorder"
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// User is the account behind a User participant as resolved by the directory.
type User struct {
	ID          UserID   `json:"id"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Tariff      string   `json:"tariff,omitempty"`
}

// SanitizeDisplayName trims surrounding whitespace and collapses inner runs of
// whitespace.
func SanitizeDisplayName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if len(name) == 0 {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
