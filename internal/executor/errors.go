package executor

import "errors"

// ErrUnknownAction marks a command whose action name is not recognised.
// It is reported in the Result, never returned from Execute.
var ErrUnknownAction = errors.New("executor: unknown action")
