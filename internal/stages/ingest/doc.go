// Package ingest is the first pipeline stage: it pulls completed calls and
// their recordings from the upstream API, records them idempotently in the
// state store, downloads the audio with a bounded worker pool, and writes
// metadata snapshots plus the run manifest.
package ingest
