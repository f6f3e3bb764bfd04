// Package daemon runs the podforge background process: it owns the worker
// pool, the RSS poller, and the JSON HTTP API, enforces single-instance
// execution with a lock file, and reconciles tasks orphaned by a previous
// process on startup.
package daemon
