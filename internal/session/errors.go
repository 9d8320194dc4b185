package session

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a session failure by the stage it arose from, so callers
// can tell credential problems from network problems.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindTLS
	KindAuth
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTLS:
		return "tls"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a classified session failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a timeout rather than
// an outright refusal or reset.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// KindOf returns the classification of err, or 0 when err did not come from
// a session operation.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsConnection reports whether err is a transport-level connect failure,
// timeouts included.
func IsConnection(err error) bool {
	return KindOf(err) == KindConnection
}

// IsTimeout reports whether err is a connect failure caused by the dial
// timeout elapsing.
func IsTimeout(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindConnection && se.Timeout()
}

// IsTLS reports whether err arose during the TLS handshake.
func IsTLS(err error) bool {
	return KindOf(err) == KindTLS
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsProtocol reports whether err arose from a protocol command after the
// session was established.
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}
