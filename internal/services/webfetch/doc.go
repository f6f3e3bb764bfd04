// Package webfetch downloads source articles and extracts readable text
// and a candidate title from their HTML.
package webfetch
