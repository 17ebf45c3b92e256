package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Stage is one phase of the storyboard-to-video run.
type Stage string

const (
	StageLayouts   Stage = "layouts"
	StageKeyframes Stage = "keyframes"
	StageReview    Stage = "review"
	StageClips     Stage = "clips"
	StageStitch    Stage = "stitch"
)

// StageOrder returns the stages in execution order.
func StageOrder() []Stage {
	return []Stage{StageLayouts, StageKeyframes, StageReview, StageClips, StageStitch}
}

// Status is the execution status of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Manifest records the state of a run so it can be resumed. It lives as
// manifest.json at the storyboard's output base.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Storyboard string    `json:"storyboard"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	CurrentStage Stage                 `json:"current_stage"`
	Stages       map[Stage]*StageState `json:"stages"`

	FinalOutput string `json:"final_output,omitempty"`
}

// StageState tracks one stage of the run.
type StageState struct {
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
}

// NewManifest creates a manifest for a fresh run.
func NewManifest(storyboardName string) *Manifest {
	now := time.Now()
	return &Manifest{
		RunID:      uuid.NewString(),
		Storyboard: storyboardName,
		CreatedAt:  now,
		UpdatedAt:  now,
		Stages:     make(map[Stage]*StageState),
	}
}

// LoadManifest reads a manifest from path. A missing file is not an error and
// returns nil.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Stages == nil {
		m.Stages = make(map[Stage]*StageState)
	}
	return &m, nil
}

// Save writes the manifest to path atomically.
func (m *Manifest) Save(path string) error {
	m.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// State returns the state for a stage, creating it if needed.
func (m *Manifest) State(stage Stage) *StageState {
	if m.Stages[stage] == nil {
		m.Stages[stage] = &StageState{Status: StatusPending}
	}
	return m.Stages[stage]
}

// Start marks a stage as running.
func (m *Manifest) Start(stage Stage) {
	state := m.State(stage)
	now := time.Now()
	state.Status = StatusRunning
	state.StartedAt = &now
	state.Error = ""
	m.CurrentStage = stage
}

// Complete marks a stage as completed.
func (m *Manifest) Complete(stage Stage) {
	state := m.State(stage)
	now := time.Now()
	state.Status = StatusCompleted
	state.CompletedAt = &now
}

// Fail marks a stage as failed and bumps its retry count.
func (m *Manifest) Fail(stage Stage, err error) {
	state := m.State(stage)
	state.Status = StatusFailed
	state.Error = err.Error()
	state.RetryCount++
}

// Skip marks a stage as skipped.
func (m *Manifest) Skip(stage Stage) {
	state := m.State(stage)
	state.Status = StatusSkipped
}

// IsCompleted reports whether a stage finished in an earlier run.
func (m *Manifest) IsCompleted(stage Stage) bool {
	state := m.Stages[stage]
	return state != nil && state.Status == StatusCompleted
}

// CanRetry reports whether a stage is still under its retry budget.
func (m *Manifest) CanRetry(stage Stage, maxRetries int) bool {
	state := m.Stages[stage]
	if state == nil {
		return true
	}
	return state.RetryCount < maxRetries
}
