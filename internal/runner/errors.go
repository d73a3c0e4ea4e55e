package runner

import "github.com/dkeye/opentalk/internal/core"

// Control error codes reported under the control namespace.
var (
	ErrInvalidNamespace        = core.NewError("invalid_namespace")
	ErrAlreadyJoined           = core.NewError("already_joined")
	ErrNotYetJoined            = core.NewError("not_yet_joined")
	ErrNotAcceptedOrNotWaiting = core.NewError("not_accepted_or_not_in_waiting_room")
	ErrRaiseHandsDisabled      = core.NewError("raise_hands_disabled")
	ErrTargetIsRoomOwner       = core.NewError("target_is_room_owner")
	ErrNothingToDo             = core.NewError("nothing_to_do")
)
