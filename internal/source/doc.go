// Package source talks to the upstream call API: listing completed calls,
// their recordings, and downloading recording audio. It also normalizes the
// upstream payloads into the pipeline's internal metadata with derived
// identifiers and UTC timestamps.
package source
