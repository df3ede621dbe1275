// Package format is the last pipeline stage: it renders redacted
// transcripts as Markdown documents and optionally publishes them to an
// export directory.
package format
