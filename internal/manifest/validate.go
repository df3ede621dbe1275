package manifest

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate checks the manifest against its schema and returns every
// violation at once rather than stopping at the first.
func (m *Manifest) Validate() error {
	var result *multierror.Error

	if m.Schema == "" {
		result = multierror.Append(result, fmt.Errorf("schema is required"))
	}
	if !semverPattern.MatchString(m.SchemaVersion) {
		result = multierror.Append(result, fmt.Errorf("schema_version %q is not semver (X.Y.Z)", m.SchemaVersion))
	}
	if m.StepID == "" {
		result = multierror.Append(result, fmt.Errorf("step_id is required"))
	}
	if m.StepRunID == "" {
		result = multierror.Append(result, fmt.Errorf("step_run_id is required"))
	}

	switch m.Status {
	case StatusSuccess:
		if len(m.Errors) > 0 {
			result = multierror.Append(result, fmt.Errorf("status success with %d errors", len(m.Errors)))
		}
	case StatusError, StatusPartial:
		if len(m.Errors) == 0 {
			result = multierror.Append(result, fmt.Errorf("status %s without errors", m.Status))
		}
	case StatusRunning:
		result = multierror.Append(result, fmt.Errorf("manifest still running, not finalized"))
	default:
		result = multierror.Append(result, fmt.Errorf("unknown status %q", m.Status))
	}

	switch m.RunMode {
	case ModeBackfill, ModeIncr, ModeDry:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown run_mode %q", m.RunMode))
	}

	if m.StartedAtUTC == "" {
		result = multierror.Append(result, fmt.Errorf("started_at_utc is required"))
	} else if _, err := time.Parse(timestampLayout, m.StartedAtUTC); err != nil {
		result = multierror.Append(result, fmt.Errorf("started_at_utc %q is not a UTC timestamp", m.StartedAtUTC))
	}
	if m.FinishedAtUTC != "" {
		if _, err := time.Parse(timestampLayout, m.FinishedAtUTC); err != nil {
			result = multierror.Append(result, fmt.Errorf("finished_at_utc %q is not a UTC timestamp", m.FinishedAtUTC))
		}
	}

	if m.Outputs.Primary == "" {
		result = multierror.Append(result, fmt.Errorf("outputs.primary is required"))
	}

	for i, unitErr := range m.Errors {
		if unitErr.UnitID == "" {
			result = multierror.Append(result, fmt.Errorf("errors[%d]: unit_id is required", i))
		}
		if unitErr.ErrorKey == "" {
			result = multierror.Append(result, fmt.Errorf("errors[%d]: error_key is required", i))
		}
	}

	return result.ErrorOrNil()
}
