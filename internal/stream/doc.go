// Package stream manages remote capture sessions. Each session wraps a
// capture controller fed by frames pushed from a network client; sessions
// idle longer than the configured timeout are discarded.
package stream
