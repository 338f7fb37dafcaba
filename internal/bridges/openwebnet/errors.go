package openwebnet

import "errors"

// Domain errors for the OpenWebNet bridge package.
var (
	// ErrInvalidArgument is returned when a registry operation is called
	// with an empty id or a nil handle.
	ErrInvalidArgument = errors.New("openwebnet: invalid argument")

	// ErrNoBridge is returned when a device is initialised without a bridge.
	ErrNoBridge = errors.New("openwebnet: no bridge associated")

	// ErrMissingProperty is returned when a required configuration property is absent.
	ErrMissingProperty = errors.New("openwebnet: missing required property")

	// ErrNotConnected is returned when an operation needs a connected gateway.
	ErrNotConnected = errors.New("openwebnet: gateway not connected")

	// ErrUnknownThing is returned when a thing id is not registered.
	ErrUnknownThing = errors.New("openwebnet: unknown thing")

	// ErrUnknownBridge is returned when a bridge id is not configured.
	ErrUnknownBridge = errors.New("openwebnet: unknown bridge")

	// ErrUnsupportedChannel is returned when a command targets a channel the
	// device does not have.
	ErrUnsupportedChannel = errors.New("openwebnet: unsupported channel")

	// ErrUnsupportedCommand is returned when a command cannot be applied to a channel.
	ErrUnsupportedCommand = errors.New("openwebnet: unsupported command")

	// ErrInvalidThingType is returned for an unknown thing type name.
	ErrInvalidThingType = errors.New("openwebnet: invalid thing type")

	// ErrDisposed is returned by operations on a disposed handler.
	ErrDisposed = errors.New("openwebnet: handler disposed")
)
