package logging

const (
	// FieldComponent names the emitting component.
	FieldComponent = "component"
	// FieldStage names the pipeline stage.
	FieldStage = "stage"
	// FieldJobID carries the rip job identifier.
	FieldJobID = "job_id"
	// FieldTrack carries the output track index.
	FieldTrack = "track"
	// FieldPass carries the encoding pass.
	FieldPass = "pass"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorCode carries the pipeline error classification.
	FieldErrorCode = "error_code"
)
