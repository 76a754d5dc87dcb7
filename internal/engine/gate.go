package engine

import (
	"fmt"

	"github.com/coldbell/launchpad/backend/internal/launchpad"
)

// The lifecycle gate only reads the fetched snapshot; the on-chain program is
// the sole authority over transitions. Trading -> Transition -> Safe, forward
// only.

// requireSwapReady rejects buys and sells on a launch whose token has not
// been created yet. Status itself is not checked here; trading stays open
// until the program flips the launch out of Trading.
func requireSwapReady(state *launchpad.LaunchState) error {
	if !state.Initialized() {
		return fmt.Errorf("%w: launch token not created yet (status %s)", ErrState, state.Status)
	}
	return nil
}

// requireTransition gates graduate and document generation: both are legal
// only in the Transition phase.
func requireTransition(state *launchpad.LaunchState) error {
	if state.Status != launchpad.StatusTransition {
		return fmt.Errorf("%w: requires status Transition, launch is %s", ErrState, state.Status)
	}
	return nil
}
