package callctl

import "errors"

var (
	// ErrCallAlreadyActive is returned by Call when the orchestrator is
	// not in Idle (spec.md §4.4: "Reject a new Call if one is already
	// active").
	ErrCallAlreadyActive = errors.New("callctl: call already active")

	// ErrNoActiveCall is returned by Hangup/PlayWav when there is no
	// established call to act on.
	ErrNoActiveCall = errors.New("callctl: no active call")
)
