// Package api provides the HTTP API for submitting archive jobs and reading
// memory documents.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}
