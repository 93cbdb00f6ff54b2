// Package metrics defines the Prometheus instruments for capture, record
// editing, suggestion handling, collaborator calls and the HTTP API.
package metrics
