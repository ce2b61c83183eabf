package scheduler

import "fmt"

// State is a phase of the scheduler.
type State string

const (
	StateIdle         State = "idle"
	StateMirroring    State = "mirroring"
	StateHashing      State = "hashing"
	StateFetching     State = "fetching"
	StateDiffing      State = "diffing"
	StateTransferring State = "transferring"
	StateSleeping     State = "sleeping"
	StateStopped      State = "stopped"
)

// Transition is a state change.
type Transition struct {
	From State
	To   State
}

// validTransitions defines every state change the scheduler may make
var validTransitions = map[Transition]bool{
	{StateIdle, StateMirroring}: true,
	{StateIdle, StateStopped}:   true,

	// One cycle, strictly in order
	{StateMirroring, StateHashing}:     true,
	{StateHashing, StateFetching}:      true,
	{StateFetching, StateDiffing}:      true,
	{StateDiffing, StateTransferring}:  true,
	{StateTransferring, StateSleeping}: true,
	{StateTransferring, StateStopped}:  true,

	// A cycle whose local root became unusable ends early
	{StateMirroring, StateSleeping}: true,
	{StateMirroring, StateStopped}:  true,
	{StateHashing, StateSleeping}:   true,
	{StateHashing, StateStopped}:    true,

	{StateSleeping, StateMirroring}: true,
	{StateSleeping, StateStopped}:   true,
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to State) error {
	if !validTransitions[Transition{From: from, To: to}] {
		return fmt.Errorf("invalid state transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s State) bool {
	return s == StateStopped
}
