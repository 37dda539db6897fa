package harness

import (
	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation matched.
	Pass bool `json:"pass"`

	// Inputs are the ingested events in submission order.
	Inputs []ir.InputEvent `json:"inputs"`

	// Outputs are the fused outputs in emission order.
	Outputs []ir.FusedOutput `json:"outputs"`

	// EngineErrors are errors the engine reported through OnError.
	EngineErrors []string `json:"engine_errors,omitempty"`

	// Errors contains expectation failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Log is the recorder's log at the end of the run.
	Log []fusionlog.Entry `json:"log"`

	// Stats summarises Log.
	Stats fusionlog.Stats `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Inputs:  []ir.InputEvent{},
		Outputs: []ir.FusedOutput{},
		Errors:  []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
