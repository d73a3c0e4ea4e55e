package domain

import "github.com/google/uuid"

type (
	ParticipantID string
	UserID        string
	RunnerID      string
)

func NewParticipantID() ParticipantID { return ParticipantID(uuid.NewString()) }

func NewRunnerID() RunnerID { return RunnerID(uuid.NewString()) }

func NewBreakoutRoomID() BreakoutRoomID { return BreakoutRoomID(uuid.NewString()) }

func NewRoomID() RoomID { return RoomID(uuid.NewString()) }
