package own

import "errors"

// Domain errors for the OpenWebNet protocol client.
var (
	// ErrNotConnected is returned when a frame is sent without an open session.
	ErrNotConnected = errors.New("own: not connected to gateway")

	// ErrConnectionFailed is returned when the gateway session cannot be opened.
	ErrConnectionFailed = errors.New("own: connection to gateway failed")

	// ErrInvalidFrame is returned when a received or constructed frame is malformed.
	ErrInvalidFrame = errors.New("own: invalid frame")

	// ErrFrameTooLong is returned when a frame exceeds maxFrameLength without a
	// terminator. The stream is considered desynchronised.
	ErrFrameTooLong = errors.New("own: frame exceeds maximum length")

	// ErrAuthFailed is returned when the gateway rejects the session or the password.
	ErrAuthFailed = errors.New("own: gateway authentication failed")

	// ErrAuthUnsupported is returned when the gateway asks for an authentication
	// scheme this client does not implement.
	ErrAuthUnsupported = errors.New("own: unsupported authentication scheme")

	// ErrNoSerialPorts is returned when auto-discovery finds no serial ports.
	ErrNoSerialPorts = errors.New("own: no serial ports found")

	// ErrClosed is returned by operations on a gateway that has been closed.
	ErrClosed = errors.New("own: gateway closed")
)
