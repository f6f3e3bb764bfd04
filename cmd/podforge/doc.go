// Command podforge is the CLI for the podforge podcast pipeline. It runs
// the daemon in the foreground with `serve` and otherwise talks to a
// running daemon's JSON API to add, inspect, retry, and remove tasks.
package main
