package safeop

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/messaging"
	"gradebook_service/pkg/retry"
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindRejected          ErrorKind = "rejected"
	KindConnectionFault   ErrorKind = "connection_fault"
	KindNetworkFault      ErrorKind = "network_fault"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUnexpectedFault   ErrorKind = "unexpected_fault"
)

// Retriable reports whether a fault of this kind may clear on its own.
func (k ErrorKind) Retriable() bool {
	return k == KindConnectionFault || k == KindNetworkFault
}

var (
	ErrDatabaseUnreachable = errors.New("database unreachable")
	ErrNetworkUnreachable  = errors.New("network unreachable")
	ErrRateLimited         = errors.New("rate limited")
)

// Error is the failure carried by a Failed or Degraded result.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the fault kind recorded on err, or classifies it against a
// store target when err was never passed through Execute.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Classify(err, TargetStore)
}

type Target int

const (
	TargetStore Target = iota
	TargetNetwork
)

// Classify maps an error to the closed fault taxonomy. Context expiry is
// attributed to whatever the operation was talking to.
func Classify(err error, target Target) ErrorKind {
	if err == nil {
		return KindNone
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrAssignmentLocked),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrAlreadyExists):
		return KindRejected
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrDatabaseUnreachable):
		return KindConnectionFault
	case errors.Is(err, ErrNetworkUnreachable), errors.Is(err, retry.ErrCircuitOpen):
		return KindNetworkFault
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return KindConnectionFault
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if isConnectionCode(pqErr.Code) {
			return KindConnectionFault
		}
		return KindUnexpectedFault
	}

	var rejected *messaging.RejectedError
	if errors.As(err, &rejected) {
		return KindNetworkFault
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if target == TargetNetwork {
			return KindNetworkFault
		}
		return KindConnectionFault
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if target == TargetStore {
			return KindConnectionFault
		}
		return KindNetworkFault
	}

	return KindUnexpectedFault
}

func isConnectionCode(code pq.ErrorCode) bool {
	if code.Class() == "08" {
		return true
	}
	// admin_shutdown, crash_shutdown, cannot_connect_now
	return strings.HasPrefix(string(code), "57P0")
}
