// ABOUTME: BackendError classifies adapter failures by kind
// ABOUTME: Used by telemetry and failover logging; unwraps to the underlying cause

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a backend failure.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
	KindEmpty     ErrorKind = "empty"
)

// ErrEmptyReply is wrapped by KindEmpty errors.
var ErrEmptyReply = errors.New("backend returned an empty reply")

// BackendError is returned by adapters for every backend failure.
type BackendError struct {
	Adapter    string
	Kind       ErrorKind
	StatusCode int // set for KindStatus
	Err        error
}

func (e *BackendError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: %s %d: %v", e.Adapter, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Adapter, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// transportError picks KindTimeout for deadline errors and KindTransport otherwise.
func transportError(adapterID string, err error) *BackendError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &BackendError{Adapter: adapterID, Kind: kind, Err: err}
}

func emptyReply(adapterID string) *BackendError {
	return &BackendError{Adapter: adapterID, Kind: KindEmpty, Err: ErrEmptyReply}
}
