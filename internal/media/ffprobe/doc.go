// Package ffprobe wraps the ffprobe command line tool for inspecting
// generated audio artifacts.
package ffprobe
