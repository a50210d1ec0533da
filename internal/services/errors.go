// Package services defines the business logic for prompts.
// This file centralizes the closed set of service-level failures so that
// callers can branch on a Kind instead of inspecting error messages.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. The set is closed.
type Kind int

const (
	// KindUnknown is reported for nil or foreign errors.
	KindUnknown Kind = iota
	// KindUnauthorized means no caller identity could be resolved.
	KindUnauthorized
	// KindNotFoundOrForbidden means the target does not exist or is owned by
	// someone else. The two cases are indistinguishable on purpose.
	KindNotFoundOrForbidden
	// KindPersistence covers every other backend failure.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFoundOrForbidden:
		return "not_found_or_forbidden"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFoundOrForbidden = errors.New("prompt not found or not owned by caller")
	ErrPersistence         = errors.New("persistence failure")
)

// Op names the failing operation. Persistence messages are derived from it.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpSearch Op = "search"
)

// Error is the only error type returned by PromptService. It never carries
// backend detail.
type Error struct {
	Op   Op
	Kind Kind
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnauthorized:
		return ErrUnauthorized.Error()
	case KindNotFoundOrForbidden:
		return ErrNotFoundOrForbidden.Error()
	}
	switch e.Op {
	case OpList:
		return "failed to fetch prompts"
	case OpSearch:
		return "failed to search prompts"
	default:
		return fmt.Sprintf("failed to %s prompt", e.Op)
	}
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNotFoundOrForbidden:
		return e.Kind == KindNotFoundOrForbidden
	case ErrPersistence:
		return e.Kind == KindPersistence
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// OpOf returns the failing operation recorded in err, if any.
func OpOf(err error) Op {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

func unauthorized(op Op) error { return &Error{Op: op, Kind: KindUnauthorized} }
func notFound(op Op) error     { return &Error{Op: op, Kind: KindNotFoundOrForbidden} }
func persistence(op Op) error  { return &Error{Op: op, Kind: KindPersistence} }
