// Package protocol defines the capture socket messages: JSON control and
// reply messages, and binary frames of little-endian float32 samples.
package protocol
