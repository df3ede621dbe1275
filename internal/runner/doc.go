// Package runner orchestrates one stage run: it computes the eligible work
// list from the store, fans units out over a bounded worker pool, and applies
// exactly one store transition per unit from a single control path as results
// complete. It owns the run directory artifacts: manifest.json, metrics.json,
// progress.json and the success.ok / error.json outcome markers.
package runner
