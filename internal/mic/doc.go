// Package mic provides a capture.Device backed by the host microphone.
package mic
