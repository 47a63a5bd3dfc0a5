package errors

import (
	"errors"
	"fmt"
	"strings"
)

// SetupError indicates the scenario could not be stood up. No traffic is sent after one.
type SetupError struct {
	Stage string
	Err   error
}

func NewSetupError(stage string, err error) *SetupError {
	return &SetupError{Stage: stage, Err: err}
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed during %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError checks if the error is a SetupError.
func IsSetupError(err error) bool {
	var e *SetupError
	return errors.As(err, &e)
}

// AssertionError indicates an observed value did not match the expected one.
type AssertionError struct {
	Point    string
	Key      string
	Expected int64
	Observed int64
}

func NewAssertionError(point, key string, expected, observed int64) *AssertionError {
	return &AssertionError{Point: point, Key: key, Expected: expected, Observed: observed}
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %q failed for %s: expected %d, observed %d", e.Point, e.Key, e.Expected, e.Observed)
}

// IsAssertionError checks if the error is an AssertionError.
func IsAssertionError(err error) bool {
	var e *AssertionError
	return errors.As(err, &e)
}

// TeardownWarning reports a component that did not stop cleanly. It never fails a run.
type TeardownWarning struct {
	Component string
	Err       error
}

func NewTeardownWarning(component string, err error) *TeardownWarning {
	return &TeardownWarning{Component: component, Err: err}
}

func (e *TeardownWarning) Error() string {
	return fmt.Sprintf("%s did not stop cleanly: %v", e.Component, e.Err)
}

func (e *TeardownWarning) Unwrap() error {
	return e.Err
}

func IsTeardownWarning(err error) bool {
	var e *TeardownWarning
	return errors.As(err, &e)
}

// ExhaustionError indicates no free port was found in the requested range.
type ExhaustionError struct {
	Lower    int
	Upper    int
	Attempts int
}

func NewExhaustionError(lower, upper, attempts int) *ExhaustionError {
	return &ExhaustionError{Lower: lower, Upper: upper, Attempts: attempts}
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("no free port in [%d, %d) after %d attempts", e.Lower, e.Upper, e.Attempts)
}

func IsExhaustionError(err error) bool {
	var e *ExhaustionError
	return errors.As(err, &e)
}

// LaunchError indicates an external program could not be found or started.
type LaunchError struct {
	Command []string
	Err     error
}

func NewLaunchError(command []string, err error) *LaunchError {
	return &LaunchError{Command: command, Err: err}
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func IsLaunchError(err error) bool {
	var e *LaunchError
	return errors.As(err, &e)
}

// InvalidArgumentError indicates a required argument was missing or malformed.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func NewInvalidArgumentError(argument, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Argument: argument, Reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Reason)
}

func IsInvalidArgumentError(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}
