// Package collab is the HTTP client for the remote collaborators of a
// consultation: audio upload and transcription, record generation, and
// decision-support suggestions. Calls are bounded by a semaphore and
// retried with exponential backoff when the failure is transient.
package collab
