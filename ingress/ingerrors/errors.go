// Package ingerrors provides structured, wrapped errors for the ingress
// dispatch plane.
package ingerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrDecodeFailed indicates the request body could not be decoded under
	// its declared Content-Type.
	ErrDecodeFailed = errors.New("ingress: body decode failed")
	// ErrUnknownRequestCode indicates a code-path request carried a blank or
	// malformed (non-numeric) request code. A well-formed code with no
	// registered processor is reported as ErrNoRoute.
	ErrUnknownRequestCode = errors.New("ingress: unknown or blank request code")
	// ErrNoRoute indicates neither the URI-route table nor the code-route
	// table could classify the request.
	ErrNoRoute = errors.New("ingress: no matching route")
	// ErrPoolSaturated indicates a route's worker pool rejected a submission.
	ErrPoolSaturated = errors.New("ingress: worker pool saturated")
	// ErrProcessorRejected indicates processor.RejectRequest() returned true.
	ErrProcessorRejected = errors.New("ingress: processor rejected request")
	// ErrBuildFailed indicates a HeaderBuilder or BodyBuilder returned an
	// error for a registered request code.
	ErrBuildFailed = errors.New("ingress: header/body build failed")
)

// DispatchError carries the route/request context an error occurred under,
// for structured logging at the point it's caught.
type DispatchError struct {
	Op         string // e.g. "decode", "route", "submit"
	Route      string // request code or URI prefix
	RemoteAddr string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Route != "" {
		return fmt.Sprintf("ingress %s [%s] %s: %v", e.Op, e.Route, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("ingress %s %s: %v", e.Op, e.RemoteAddr, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Wrap attaches dispatch context to err. Returns nil if err is nil.
func Wrap(op, route, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &DispatchError{Op: op, Route: route, RemoteAddr: remoteAddr, Err: err}
}
