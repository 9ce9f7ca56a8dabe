package proc

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution matches every *ResolutionError.
	ErrResolution = errors.New("resolution failed")

	ErrRoomClosed      = errors.New("room is closed")
	ErrInvalidated     = errors.New("lookahead invalidated")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrIndexOutOfRange = errors.New("queue position out of range")
	ErrNoRoom          = errors.New("no active room")
	ErrSessionEnded    = errors.New("voice session ended")
)

type ResolutionKind int

const (
	KindUnknown ResolutionKind = iota
	KindNotFound
	KindNetwork
	KindRestricted
	KindMalformed
)

func (k ResolutionKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindNetwork:
		return "network failure"
	case KindRestricted:
		return "restricted"
	case KindMalformed:
		return "malformed reference"
	default:
		return "unknown"
	}
}

// ResolutionError is a non-fatal failure for one track.
type ResolutionError struct {
	Kind ResolutionKind
	Ref  TrackRef
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %s", e.Ref.URL, e.Kind)
	}
	return fmt.Sprintf("resolve %s: %s: %v", e.Ref.URL, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// NewResolutionError wraps err unless it already is a *ResolutionError.
func NewResolutionError(kind ResolutionKind, ref TrackRef, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}
	return &ResolutionError{Kind: kind, Ref: ref, Err: err}
}

// TransportError is fatal for the room that produced it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
