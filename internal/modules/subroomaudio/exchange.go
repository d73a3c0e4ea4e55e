package subroomaudio

// Every whisper message is addressed to the runners of the affected members
// and forwarded to their clients unchanged.
var forwarded = map[string]bool{
	MsgWhisperInvite:         true,
	MsgParticipantsInvited:   true,
	MsgWhisperInviteAccepted: true,
	MsgWhisperInviteDeclined: true,
	MsgLeftWhisperGroup:      true,
	MsgKicked:                true,
}
