package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is returned by Run when a newer run started before this
	// one finished. The superseded run's result is discarded.
	ErrSuperseded = errors.New("run superseded by a newer trigger")

	// ErrIncompleteIdentification is returned when description or category
	// is empty.
	ErrIncompleteIdentification = errors.New("identification needs both description and category")
)

// MissingCredentialError means a backend credential is absent. For the
// drafting backend it selects the fallback path instead of failing the run.
type MissingCredentialError struct {
	Credential string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential: %s", e.Credential)
}

// UpstreamCallError is a collaborator call failure. It is fatal to the run.
type UpstreamCallError struct {
	Stage State
	Err   error
}

func (e *UpstreamCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage.stageName(), e.Err)
}

func (e *UpstreamCallError) Unwrap() error { return e.Err }

// MalformedResponseError means a collaborator returned data that cannot be
// turned into the expected shape.
type MalformedResponseError struct {
	Stage State
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %v", e.Stage.stageName(), e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// FailedStage returns the stage named by a run error, if any.
func FailedStage(err error) (State, bool) {
	var upstream *UpstreamCallError
	if errors.As(err, &upstream) {
		return upstream.Stage, true
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Stage, true
	}
	return StateIdle, false
}
