// Package rss ingests configured feeds on an interval and turns unseen
// entries into pipeline tasks. Feeds are fetched concurrently in small
// batches with a pause between batches; entry URLs already known to the
// task store are skipped.
package rss
