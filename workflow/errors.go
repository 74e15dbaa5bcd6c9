package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCircularDependency matches any CircularDependencyError via errors.Is.
	ErrCircularDependency = errors.New("circular dependency")
	// ErrMissingDependency matches any MissingDependencyError via errors.Is.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrDuplicateStep is returned by Build when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")
	// ErrInvalidRetryPolicy wraps retry policy bound violations.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
	// ErrWorkflowCancelled is returned when Cancel stops a run between dispatches.
	ErrWorkflowCancelled = errors.New("workflow cancelled")
	// ErrAlreadyExecuted is returned when Execute is called on a workflow that already ran.
	ErrAlreadyExecuted = errors.New("workflow already executed")
)

// MissingDependencyError reports a depends_on entry that names no step.
type MissingDependencyError struct {
	Step       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.Step, e.Dependency)
}

// Is lets errors.Is(err, ErrMissingDependency) match.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

// CircularDependencyError is raised at run time when no remaining step can
// become ready.
type CircularDependencyError struct {
	Workflow  string
	Remaining []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected in workflow %q: unresolved steps [%s]",
		e.Workflow, strings.Join(e.Remaining, ", "))
}

// Is lets errors.Is(err, ErrCircularDependency) match.
func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}
