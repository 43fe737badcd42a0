package planstore

import "errors"

// ErrNotFound indicates an operation referenced an unknown plan id. This maps
// to the orchestrator's NotInitialized error: it is permanent, and queue
// consumers should dead-letter instead of retrying forever.
var ErrNotFound = errors.New("plan not found")

// ErrAlreadyExists indicates a Create for a plan id that is already stored.
var ErrAlreadyExists = errors.New("plan already exists")
