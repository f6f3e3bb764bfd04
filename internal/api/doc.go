// Package api defines the JSON task views exchanged over the daemon's
// HTTP interface and the TaskService that backs both the HTTP handlers
// and the CLI commands.
package api
