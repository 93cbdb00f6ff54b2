// Package capture implements the consultation recording state machine.
// A Controller acquires a Device, buffers the frames its Stream delivers
// asynchronously, and on Stop turns them into a 16 kHz mono WAV container.
package capture
