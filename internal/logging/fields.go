package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTaskID is the standardized structured logging key for inference task identifiers.
	FieldTaskID = "task_id"
	// FieldTier is the standardized structured logging key for the selected binary tier.
	FieldTier = "tier"
	// FieldAccelerator is the standardized structured logging key for accelerator names.
	FieldAccelerator = "accelerator"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator-facing remediation hints.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldProgressPercent is the standardized structured logging key for task progress.
	FieldProgressPercent = "progress_percent"
	// FieldState is the standardized structured logging key for task states.
	FieldState = "state"
)
