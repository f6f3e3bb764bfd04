// Package storage manages the on-disk layout of task working directories and
// the standardized naming of published audio and subtitle artifacts.
package storage
