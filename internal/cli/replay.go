package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/fusion/internal/harness"
	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database     string
	Session      string // optional - latest session when empty
	DefaultRules bool
}

// ReplayResult holds the replay result for one session.
type ReplayResult struct {
	SessionID     string   `json:"session_id"`
	Inputs        int      `json:"inputs"`
	Recorded      int      `json:"recorded_outputs"`
	Replayed      int      `json:"replayed_outputs"`
	ConfigMatch   bool     `json:"config_match"`
	Deterministic bool     `json:"deterministic"`
	Differences   []string `json:"differences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <config-dir>",
		Short: "Replay an archived session and verify determinism",
		Long: `Replay the inputs of an archived session through a fresh engine on
simulated time and compare the fused outputs with the archived ones.

Inputs are resubmitted at their recorded timestamps with their recorded
ids, so matching outputs have identical ids. The config is compared with
the fingerprint stored with the session.

Exit codes:
  0 - Replay matched the archived outputs
  1 - Replay diverged
  2 - Command error (database not found, etc.)

Examples:
  fusion replay ./config --db ./fusion.db
  fusion replay ./config --db ./fusion.db --session 0190f3c2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().BoolVar(&opts.DefaultRules, "default-rules", false, "install the built-in rules ahead of configured ones")

	return cmd
}

func runReplay(opts *ReplayOptions, configDir string, cmd *cobra.Command) error {
	ctx := context.Background()

	bundle, err := loadBundle(configDir, opts.DefaultRules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile config", err)
	}
	cfg, err := bundle.EngineConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build config", err)
	}
	configHash, err := bundle.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash config", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := resolveSession(ctx, st, opts.Session)
	if err != nil {
		return err
	}
	inputs, err := st.ReadInputs(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read inputs", err)
	}
	recorded, err := st.ReadOutputs(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outputs", err)
	}

	replayed, err := harness.Replay(cfg, bundle.Config.Debounce, inputs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay session", err)
	}

	diffs := compareOutputs(recorded, replayed.Outputs)
	result := ReplayResult{
		SessionID:     sess.ID,
		Inputs:        len(inputs),
		Recorded:      len(recorded),
		Replayed:      len(replayed.Outputs),
		ConfigMatch:   sess.ConfigHash == configHash,
		Deterministic: len(diffs) == 0,
		Differences:   diffs,
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// compareOutputs lists the differences between archived and replayed
// outputs, position by position.
func compareOutputs(recorded []store.OutputRecord, replayed []ir.FusedOutput) []string {
	var diffs []string
	if len(recorded) != len(replayed) {
		diffs = append(diffs, fmt.Sprintf("output count: recorded %d, replayed %d", len(recorded), len(replayed)))
	}

	for i := range min(len(recorded), len(replayed)) {
		rec, got := recorded[i], replayed[i]
		field := func(name string, want, have any) {
			diffs = append(diffs, fmt.Sprintf("output %d %s: recorded %v, replayed %v", rec.Position, name, want, have))
		}

		if rec.ID != got.ID {
			field("id", rec.ID, got.ID)
		}
		if rec.RuleID != got.RuleID {
			field("rule", rec.RuleID, got.RuleID)
		}
		if rec.Kind != got.Data.Kind {
			field("kind", rec.Kind, got.Data.Kind)
		}
		if rec.Command != got.Data.Command {
			field("command", fmt.Sprintf("%q", rec.Command), fmt.Sprintf("%q", got.Data.Command))
		}
		if ids := ir.InputIDs(got.OriginalInputs); !slices.Equal(rec.InputIDs, ids) {
			field("inputs", rec.InputIDs, ids)
		}
		if bp := ir.BasisPoints(got.Confidence); rec.ConfidenceBP != bp {
			field("confidence_bp", rec.ConfidenceBP, bp)
		}
	}
	return diffs
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status:    "ok",
		Data:      result,
		SessionID: result.SessionID,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "replay diverged from archived outputs",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "replay diverged from archived outputs")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: session %s\n", result.SessionID)
	fmt.Fprintf(w, "  Inputs: %d\n", result.Inputs)
	fmt.Fprintf(w, "  Outputs: %d recorded, %d replayed\n", result.Recorded, result.Replayed)
	if !result.ConfigMatch {
		fmt.Fprintln(w, "  Warning: config differs from the one the session was recorded with")
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay matched archived outputs")
		return nil
	}

	limit := len(result.Differences)
	if !verbose {
		limit = min(limit, 10)
	}
	for _, d := range result.Differences[:limit] {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if limit < len(result.Differences) {
		fmt.Fprintf(w, "  ... %d more (use -v to show all)\n", len(result.Differences)-limit)
	}

	fmt.Fprintln(w, "✗ Replay diverged")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "replay diverged from archived outputs")
}
