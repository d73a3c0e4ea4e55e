// Package auth resolves request credentials. Bearer tokens map to users,
// service tokens to the recorder and the call-in gateway.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/dkeye/opentalk/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service string

const (
	ServiceRecording Service = "recording"
	ServiceCallIn    Service = "call_in"
)

// Authenticator is the contract the HTTP layer depends on.
type Authenticator interface {
	User(ctx context.Context, bearer string) (domain.UserID, error)
	Service(ctx context.Context, service Service, token string) error
}

// Static authenticates against tokens from configuration.
type Static struct {
	users    map[string]domain.UserID
	services map[Service]string
}

var _ Authenticator = (*Static)(nil)

func NewStatic(users map[string]domain.UserID, services map[Service]string) *Static {
	return &Static{users: users, services: services}
}

func (s *Static) User(_ context.Context, bearer string) (domain.UserID, error) {
	if bearer == "" {
		return "", ErrInvalidCredentials
	}
	for token, id := range s.users {
		if equal(token, bearer) {
			return id, nil
		}
	}
	return "", ErrInvalidCredentials
}

func (s *Static) Service(_ context.Context, service Service, token string) error {
	want, ok := s.services[service]
	if !ok || want == "" || !equal(want, token) {
		return ErrInvalidCredentials
	}
	return nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
