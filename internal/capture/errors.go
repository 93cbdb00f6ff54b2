package capture

import "errors"

// Capture error taxonomy. Device errors are returned by Start and are
// recoverable by retrying Start; encoding errors end the current session.
var (
	// ErrDeviceUnavailable means the platform offers no capture API or device.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrPermissionDenied means the user or platform refused microphone access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrInsecureContext means capture was refused because the caller is not
	// running in a secure context.
	ErrInsecureContext = errors.New("capture: insecure context")

	// ErrEmptyCapture is returned by Stop when no frames were collected.
	ErrEmptyCapture = errors.New("capture: no audio captured")

	// ErrEncodingFailure means the container could not be built or violated
	// its size invariants.
	ErrEncodingFailure = errors.New("capture: encoding failed")

	// ErrInvalidState is returned for transitions the state machine does not allow.
	ErrInvalidState = errors.New("capture: invalid state transition")
)

// failureReason maps an error to a short metrics label
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrInsecureContext):
		return "insecure_context"
	case errors.Is(err, ErrEmptyCapture):
		return "empty_capture"
	case errors.Is(err, ErrEncodingFailure):
		return "encoding_failure"
	default:
		return "other"
	}
}
