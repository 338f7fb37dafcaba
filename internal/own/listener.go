package own

import (
	"errors"
	"fmt"
	"sync"
)

// Listener receives session and frame events from a gateway.
//
// Callbacks for one gateway are invoked on a single goroutine, in the order
// the events happened. OnConnectionClosed is the exception: Close delivers it
// on the caller's goroutine after the event goroutine has stopped. Callbacks
// must not call Close on the gateway that delivers them.
type Listener interface {
	OnConnected()
	OnConnectionError(err *ConnError)
	OnConnectionClosed()
	OnDisconnected(err error)
	OnReconnected()
	OnMessage(msg Message)
}

// ConnErrorKind classifies why a session could not be opened.
type ConnErrorKind int

// Connection error kinds.
const (
	ConnErrOther ConnErrorKind = iota
	ConnErrDisconnected
	ConnErrNoSerialPorts
	ConnErrRuntimeEnvironment
	ConnErrIO
)

// String returns the kind name used in logs and health messages.
func (k ConnErrorKind) String() string {
	switch k {
	case ConnErrDisconnected:
		return "DISCONNECTED"
	case ConnErrNoSerialPorts:
		return "NO_SERIAL_PORTS"
	case ConnErrRuntimeEnvironment:
		return "RUNTIME_ENVIRONMENT_ERROR"
	case ConnErrIO:
		return "IO_ERROR"
	default:
		return "OTHER"
	}
}

// ConnError is reported to listeners when a session cannot be opened.
type ConnError struct {
	Kind ConnErrorKind
	Err  error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("own: connection error (%s)", e.Kind)
	}
	return fmt.Sprintf("own: connection error (%s): %v", e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// classify turns an open failure into a ConnError. Openers may return a
// *ConnError directly when they know the kind better.
func classify(err error) *ConnError {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrNoSerialPorts):
		return &ConnError{Kind: ConnErrNoSerialPorts, Err: err}
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrAuthUnsupported):
		return &ConnError{Kind: ConnErrOther, Err: err}
	default:
		return &ConnError{Kind: ConnErrIO, Err: err}
	}
}

// listenerSet is a concurrency-safe list of subscribed listeners.
type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (s *listenerSet) add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) remove(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) contains(l Listener) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.listeners {
		if existing == l {
			return true
		}
	}
	return false
}

func (s *listenerSet) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
