package driver

import "fmt"

// Verb identifies how a command target is interpreted.
type Verb string

const (
	// VerbSetTo drives the linked measure to the given absolute target.
	VerbSetTo Verb = "set_to"

	// VerbIncrease drives the linked measure to currentValue + target.
	VerbIncrease Verb = "increase"

	// VerbDecrease drives the linked measure to currentValue - target.
	VerbDecrease Verb = "decrease"

	// VerbTakeControl is declared by the rig but performs no actuation.
	// Issuing it is acknowledged and reported, never silently absorbed.
	VerbTakeControl Verb = "take_control"
)

// ParseVerb converts a wire string to a Verb.
func ParseVerb(s string) (Verb, error) {
	switch Verb(s) {
	case VerbSetTo, VerbIncrease, VerbDecrease, VerbTakeControl:
		return Verb(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVerb, s)
	}
}

// String implements fmt.Stringer.
func (v Verb) String() string {
	return string(v)
}
