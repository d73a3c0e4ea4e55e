package ticket

import (
	"crypto/rand"
	"encoding/base32"

	"github.com/dkeye/opentalk/internal/domain"
)

const tokenBytes = 32

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func randomToken() string {
	b := make([]byte, tokenBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return tokenEncoding.EncodeToString(b)
}

func NewTicketToken() domain.TicketToken { return domain.TicketToken(randomToken()) }

func NewResumptionToken() domain.ResumptionToken {
	return domain.ResumptionToken(randomToken())
}
