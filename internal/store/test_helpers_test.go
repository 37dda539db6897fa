package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with a fixed id and start time.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess := Session{
		ID:            id,
		StartedAt:     testEpoch,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestInput creates a voice input with minimal required fields.
func createTestInput(id string, seq int64, text string) ir.InputEvent {
	return ir.InputEvent{
		ID:        id,
		Seq:       seq,
		Type:      ir.InputVoice,
		Data:      ir.Voice{Transcript: text},
		Timestamp: testEpoch.Add(time.Duration(seq) * time.Millisecond),
	}
}

// createTestOutput creates a fused output over the given inputs.
func createTestOutput(id string, inputs ...ir.InputEvent) ir.FusedOutput {
	return ir.FusedOutput{
		ID:             id,
		RuleID:         "voice_touch_fusion",
		OriginalInputs: inputs,
		Data: ir.FusedData{
			Kind:    "voice_touch_command",
			Command: "voice touch",
			Fields:  ir.IRObject{"min_confidence_bp": ir.IRInt(8000)},
		},
		Confidence: 0.85,
		Timestamp:  testEpoch.Add(time.Second),
	}
}
