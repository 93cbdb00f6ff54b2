// Package server provides the HTTP API: stateless record and suggestion
// tooling, the websocket capture endpoint, and health and Prometheus
// metrics endpoints.
package server
