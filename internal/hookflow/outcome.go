package hookflow

// Outcome is the tagged result of one engine invocation. Exactly one of
// Finished, StepAdvanced, or Failed is produced per invocation. The step
// advance is a control transfer, not an error, and is kept distinguishable
// from Failed at the type level.
type Outcome interface {
	outcome()
}

// Finished means the workflow body ran to the end without requesting any
// uncompleted step. Result is the body's return value.
type Finished struct {
	Result any
}

// StepAdvanced means the body reached a step whose ID was not present in
// the completed-steps cache. The step's result was computed exactly once
// and recorded into CompletedSteps; the rest of the body was not executed.
type StepAdvanced struct {
	StepID         string
	Result         any
	CompletedSteps CompletedSteps
}

// Failed means the workflow body returned a domain error.
type Failed struct {
	Err error
}

func (Finished) outcome()     {}
func (StepAdvanced) outcome() {}
func (Failed) outcome()       {}
