package store

import (
	"errors"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session is one archived engine run.
type Session struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	ConfigHash    string    `json:"config_hash,omitempty"`
	Note          string    `json:"note,omitempty"`
	EngineVersion string    `json:"engine_version"`
	IRVersion     string    `json:"ir_version"`
}

// OutputRecord is an archived fused output.
//
// The original inputs are referenced by id; read them with ReadInputs.
// Data is the canonical IR form of the fused data.
type OutputRecord struct {
	ID           string      `json:"id"`
	Position     int64       `json:"position"`
	RuleID       string      `json:"rule_id,omitempty"`
	Kind         string      `json:"kind"`
	Command      string      `json:"command,omitempty"`
	Data         ir.IRObject `json:"data"`
	InputIDs     []string    `json:"input_ids"`
	ConfidenceBP int64       `json:"confidence_bp"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Confidence returns the stored confidence as a fraction.
func (r OutputRecord) Confidence() float64 {
	return float64(r.ConfidenceBP) / 10000
}
