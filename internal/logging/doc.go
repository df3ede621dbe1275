// Package logging builds the slog loggers used across the pipeline: a
// compact console handler for interactive use and a JSON handler for log
// files, plus helpers that derive standardized fields from context.
package logging
