package driver

import "errors"

// Domain errors for the driver package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, driver.ErrUnknownCommand) {
//	    // handle not found case
//	}
var (
	// ErrUnknownCommand is returned when a command ID does not exist.
	ErrUnknownCommand = errors.New("driver: unknown command")

	// ErrUnknownMeasure is returned when a measure ID does not exist.
	ErrUnknownMeasure = errors.New("driver: unknown measure")

	// ErrUnsupportedVerb is returned when a verb is not recognised or not
	// declared by the addressed command.
	ErrUnsupportedVerb = errors.New("driver: unsupported verb")

	// ErrDuplicateMeasure is returned when registering a measure with an ID
	// that already exists.
	ErrDuplicateMeasure = errors.New("driver: measure already registered")

	// ErrDuplicateCommand is returned when registering a command with an ID
	// that already exists.
	ErrDuplicateCommand = errors.New("driver: command already registered")

	// ErrMeasureAlreadyLinked is returned when a second command tries to
	// link a measure that is already controlled.
	ErrMeasureAlreadyLinked = errors.New("driver: measure already linked to a command")
)
