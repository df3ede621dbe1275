package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime/debug"
	"time"
)

// ErrFinalized is returned by every mutator once the manifest has been
// finalized or loaded from disk.
var ErrFinalized = errors.New("manifest already finalized")

// Status describes the outcome recorded in a finalized manifest.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// RunMode describes how a step run was invoked.
type RunMode string

const (
	ModeBackfill RunMode = "backfill"
	ModeIncr     RunMode = "incr"
	ModeDry      RunMode = "dry"
)

// ParseRunMode validates a mode string from the CLI.
func ParseRunMode(value string) (RunMode, error) {
	switch RunMode(value) {
	case ModeBackfill, ModeIncr, ModeDry:
		return RunMode(value), nil
	default:
		return "", fmt.Errorf("unknown run mode %q", value)
	}
}

// Producer identifies the code and machine that produced a run.
type Producer struct {
	GitSHA           string `json:"git_sha"`
	Host             string `json:"host"`
	User             string `json:"user"`
	ProcessorVersion string `json:"processor_version,omitempty"`
}

// InputRef names one input a run consumed.
type InputRef struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Outputs lists the files a run produced. Primary is required; Aux maps a
// short label to a path.
type Outputs struct {
	Primary string            `json:"primary"`
	Aux     map[string]string `json:"aux,omitempty"`
}

// UnitError records a per-unit failure inside a run.
type UnitError struct {
	UnitID   string `json:"unit_id"`
	ErrorKey string `json:"error_key"`
	Message  string `json:"message"`
}

// Manifest is the record of one step run. Build it with New, fill it with
// the mutators, finalize exactly once, then Write.
type Manifest struct {
	Schema        string             `json:"schema"`
	SchemaVersion string             `json:"schema_version"`
	StepID        string             `json:"step_id"`
	StepRunID     string             `json:"step_run_id"`
	FlowRunID     string             `json:"flow_run_id,omitempty"`
	Producer      Producer           `json:"producer"`
	RunMode       RunMode            `json:"run_mode"`
	StartedAtUTC  string             `json:"started_at_utc"`
	FinishedAtUTC string             `json:"finished_at_utc,omitempty"`
	Status        Status             `json:"status"`
	InputRefs     []InputRef         `json:"input_refs"`
	Outputs       Outputs            `json:"outputs"`
	Counts        map[string]int64   `json:"counts"`
	Metrics       map[string]float64 `json:"metrics"`
	Errors        []UnitError        `json:"errors"`
	Notes         string             `json:"notes,omitempty"`

	finalized bool
	now       func() time.Time
}

const timestampLayout = "2006-01-02T15:04:05Z"

// New creates a running manifest with producer details filled in.
func New(schema, schemaVersion, stepID, stepRunID, flowRunID string, mode RunMode) *Manifest {
	m := &Manifest{
		Schema:        schema,
		SchemaVersion: schemaVersion,
		StepID:        stepID,
		StepRunID:     stepRunID,
		FlowRunID:     flowRunID,
		Producer:      currentProducer(),
		RunMode:       mode,
		Status:        StatusRunning,
		InputRefs:     []InputRef{},
		Counts:        map[string]int64{},
		Metrics:       map[string]float64{},
		Errors:        []UnitError{},
		now:           func() time.Time { return time.Now().UTC() },
	}
	m.StartedAtUTC = m.now().Format(timestampLayout)
	return m
}

// Finalized reports whether the manifest can still be mutated.
func (m *Manifest) Finalized() bool {
	return m.finalized
}

// AddInputRef records one consumed input.
func (m *Manifest) AddInputRef(refType, value string) error {
	if m.finalized {
		return ErrFinalized
	}
	m.InputRefs = append(m.InputRefs, InputRef{Type: refType, Value: value})
	return nil
}

// SetOutputs records the primary output and any auxiliary files.
func (m *Manifest) SetOutputs(primary string, aux map[string]string) error {
	if m.finalized {
		return ErrFinalized
	}
	m.Outputs = Outputs{Primary: primary, Aux: aux}
	return nil
}

// SetCount records one count statistic, overwriting a prior value.
func (m *Manifest) SetCount(name string, value int64) error {
	if m.finalized {
		return ErrFinalized
	}
	m.Counts[name] = value
	return nil
}

// MergeMetrics adds or overwrites metric values.
func (m *Manifest) MergeMetrics(metrics map[string]float64) error {
	if m.finalized {
		return ErrFinalized
	}
	for name, value := range metrics {
		m.Metrics[name] = value
	}
	return nil
}

// AddError records a per-unit failure.
func (m *Manifest) AddError(unitID, errorKey, message string) error {
	if m.finalized {
		return ErrFinalized
	}
	m.Errors = append(m.Errors, UnitError{UnitID: unitID, ErrorKey: errorKey, Message: message})
	return nil
}

// SetNotes attaches free-form notes.
func (m *Manifest) SetNotes(notes string) error {
	if m.finalized {
		return ErrFinalized
	}
	m.Notes = notes
	return nil
}

// FinalizeSuccess seals the manifest as successful. It fails when any unit
// errors were recorded; success and errors are mutually exclusive.
func (m *Manifest) FinalizeSuccess() error {
	if m.finalized {
		return ErrFinalized
	}
	if len(m.Errors) > 0 {
		return fmt.Errorf("cannot finalize as success with %d recorded errors", len(m.Errors))
	}
	m.Status = StatusSuccess
	m.seal()
	return nil
}

// FinalizeError seals the manifest as failed, or as partial when some units
// succeeded. At least one unit error must have been recorded.
func (m *Manifest) FinalizeError(partial bool) error {
	if m.finalized {
		return ErrFinalized
	}
	if len(m.Errors) == 0 {
		return errors.New("cannot finalize as error without recorded errors")
	}
	if partial {
		m.Status = StatusPartial
	} else {
		m.Status = StatusError
	}
	m.seal()
	return nil
}

func (m *Manifest) seal() {
	m.FinishedAtUTC = m.now().Format(timestampLayout)
	m.finalized = true
}

// Write persists a finalized manifest as indented JSON, creating parent
// directories as needed.
func (m *Manifest) Write(path string) error {
	if !m.finalized {
		return errors.New("manifest must be finalized before writing")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest from disk. Loaded manifests are always finalized;
// they document a completed run and cannot be amended.
func Load(path string) (*Manifest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.finalized = true
	m.now = func() time.Time { return time.Now().UTC() }
	return &m, nil
}

func currentProducer() Producer {
	producer := Producer{GitSHA: "unknown", Host: "unknown", User: "unknown"}
	if host, err := os.Hostname(); err == nil {
		producer.Host = host
	}
	if current, err := user.Current(); err == nil && current.Username != "" {
		producer.User = current.Username
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				sha := setting.Value
				if len(sha) > 12 {
					sha = sha[:12]
				}
				producer.GitSHA = sha
				break
			}
		}
	}
	return producer
}
