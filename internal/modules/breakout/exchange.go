package breakout

import "github.com/dkeye/opentalk/internal/domain"

const (
	exStart = "start"
	exStop  = "stop"
)

type startMessage struct {
	Message string `json:"message"`
	Config  Config `json:"config"`
}

type stopMessage struct {
	Message  string               `json:"message"`
	IssuedBy domain.ParticipantID `json:"issued_by"`
}
