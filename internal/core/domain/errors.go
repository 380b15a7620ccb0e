package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted   = errors.New("signaling already started")
	ErrNotStarted       = errors.New("signaling not started")
	ErrClosed           = errors.New("closed")
	ErrUnknownSession   = errors.New("no session for peer")
	ErrUnexpectedAnswer = errors.New("answer without outstanding offer")
	ErrMalformedSignal  = errors.New("malformed signal")
	ErrPeerLimit        = errors.New("peer limit reached")
	ErrDeparted         = errors.New("peer has left")
	ErrRelay            = errors.New("relay failure")
	ErrNoMedia          = errors.New("no local media available")
)

// OpError records the failing operation and, when known, the peer it
// concerned.
type OpError struct {
	Op      string
	Peer    ParticipantID
	Err     error
	Details string
}

func (e *OpError) Error() string {
	switch {
	case e.Peer != "" && e.Details != "":
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	case e.Peer != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	case e.Details != "":
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func NewPeerError(op string, peer ParticipantID, err error) *OpError {
	return &OpError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
