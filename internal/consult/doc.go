// Package consult holds the state of one consultation between recording
// and archiving.
package consult
