package services

import "context"

type contextKey string

const (
	unitIDKey contextKey = "unit_id"
	stageKey  contextKey = "stage"
	runIDKey  contextKey = "run_id"
)

// WithUnitID annotates context with the derived unit identifier.
func WithUnitID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, unitIDKey, id)
}

// UnitIDFromContext extracts the unit identifier if present.
func UnitIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(unitIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the stage run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the stage run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
