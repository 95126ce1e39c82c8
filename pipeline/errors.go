package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of a run.
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageFetch        Stage = "fetch"
	StageResolve      Stage = "resolve"
	StageUpload       Stage = "upload"
)

// errMissingID is wrapped when an apprenticeship has no usable id.
var errMissingID = errors.New(`record has no "id" field`)

// StageError reports which stage and collection a run failed in.
type StageError struct {
	Stage      Stage
	Collection string
	Err        error
}

func (e *StageError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Collection, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage err happened in, or "" if it is not a
// StageError.
func FailedStage(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
