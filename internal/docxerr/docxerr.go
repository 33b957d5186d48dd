// Package docxerr defines the error taxonomy shared by every core package.
package docxerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can branch on it without parsing
// message text.
type Kind string

const (
	PathSyntax            Kind = "path_syntax"
	PathSchema            Kind = "path_schema"
	PathResolution        Kind = "path_resolution"
	PatchShape            Kind = "patch_shape"
	PatchSemantic         Kind = "patch_semantic"
	SessionNotFound       Kind = "session_not_found"
	SourceMissing         Kind = "source_missing"
	CodecFailure          Kind = "codec_failure"
	StorageFailure        Kind = "storage_failure"
	ExternalChangePending Kind = "external_change_pending"
)

// Error is the concrete error type returned by core packages.
type Error struct {
	Kind Kind
	Path string // optional: the offending path, when applicable
	Msg  string
	Err  error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s (path=%s): %v", e.Kind, e.Msg, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no path context.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithPath attaches the offending path to an Error, returning a new value.
func WithPath(kind Kind, path, msg string) *Error {
	return &Error{Kind: kind, Path: path, Msg: msg}
}

// Wrap attaches a Kind and message to an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
