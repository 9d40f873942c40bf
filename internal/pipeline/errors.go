package pipeline

import "fmt"

// BuildError reports the build step that failed.
type BuildError struct {
	Step string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build pipeline: %s: %v", e.Step, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildError(step string, err error) error {
	return &BuildError{Step: step, Err: err}
}
