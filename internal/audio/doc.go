// Package audio handles capture buffering and format conversion.
// It accumulates float frames from a capture producer, converts the sample
// rate, quantizes to 16-bit PCM and frames the result as a mono WAV container.
package audio
