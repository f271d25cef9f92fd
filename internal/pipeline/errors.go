package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
)

// ErrRunAborted is returned by Run when an authentication failure stops
// the remaining objects.
var ErrRunAborted = errors.New("run aborted")

// DependentFetchError records a failed dependent fetch for one parent.
// It is reported as a warning and never fails the object.
type DependentFetchError struct {
	Dependent string
	ParentKey any
	Err       error
}

func (e *DependentFetchError) Error() string {
	return fmt.Sprintf("dependent %s for parent %v: %v", e.Dependent, e.ParentKey, e.Err)
}

func (e *DependentFetchError) Unwrap() error {
	return e.Err
}

// isRunFatal reports errors that must stop the whole run, not just one object.
func isRunFatal(err error) bool {
	return errors.Is(err, fidoo.ErrAuthentication) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
