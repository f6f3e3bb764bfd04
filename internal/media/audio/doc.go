// Package audio merges synthesized speech segments into episode files
// using the ffmpeg command line tool.
package audio
