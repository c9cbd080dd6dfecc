package pipeline

import (
	"fmt"
	"strings"
)

// HandlerError is a failure raised by a stage, a route handler or a scene step.
type HandlerError struct {
	Stage string
	Route string
	Err   error
}

func (e *HandlerError) Error() string {
	where := e.Stage
	if e.Route != "" {
		where += "/" + e.Route
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value and its stack.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Code satisfies the error code convention used by handler summaries.
func (e *PanicError) Code() string { return "panic" }

// wrap attaches stage and route names unless err already is a HandlerError.
func wrap(stage, route string, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := err.(*HandlerError); ok {
		if he.Stage == "" {
			he.Stage = stage
		}
		return he
	}
	return &HandlerError{Stage: stage, Route: strings.TrimSpace(route), Err: err}
}
