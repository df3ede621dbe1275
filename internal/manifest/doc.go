// Package manifest records the outcome of one pipeline step run: what was
// consumed, what was produced, counts and metrics, and any per-unit errors.
// A manifest is built incrementally during a run, finalized exactly once,
// validated and written as manifest.json into the run directory alongside
// the success.ok marker or error.json.
package manifest
