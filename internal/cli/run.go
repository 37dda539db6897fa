package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/fusion/internal/compiler"
	"github.com/roach88/fusion/internal/engine"
	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Events       string
	Database     string
	DefaultRules bool
	Note         string

	// IDGenerator allows overriding input ids (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator

	// Sleep allows overriding the delay_ms wait (for testing).
	// If nil, waits on the wall clock.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Inputs    int                      `json:"inputs"`
	Outputs   []ir.FusedOutput         `json:"outputs"`
	Errors    []string                 `json:"errors,omitempty"`
	Stats     fusionlog.Stats          `json:"stats"`
	SessionID string                   `json:"session_id,omitempty"`
	Warnings  []compiler.ShadowWarning `json:"warnings,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config-dir>",
		Short: "Feed input events through the fusion engine",
		Long: `Start a fusion engine with the config in <config-dir> and feed it input
events read as JSON lines, one event per line:

  {"type":"voice","data":"turn on the lights","delay_ms":300}
  {"type":"touch","data":{"target":"lamp","x":10,"y":20}}

delay_ms waits before the event is submitted. At end of input the pending
window is evaluated immediately. Fused outputs are printed as they are
produced. With --db the session is archived to SQLite.

Example:
  fusion run ./config --events session.jsonl
  fusion run ./config --default-rules --db ./fusion.db < session.jsonl`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFusion(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "-", "JSON-lines events file (- for stdin)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the session to this SQLite database")
	cmd.Flags().BoolVar(&opts.DefaultRules, "default-rules", false, "install the built-in rules ahead of configured ones")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note stored with the archived session")

	return cmd
}

func runFusion(opts *RunOptions, configDir string, cmd *cobra.Command) error {
	slog.Info("compiling config", "dir", configDir)
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
	slog.Info("config compiled", "rules", len(cfg.Rules), "config_hash", shortHash(configHash))

	in, closeIn, err := openEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open events", err)
	}
	defer closeIn()

	// Fail before the run rather than after it
	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	logOpts := []fusionlog.Option{}
	if opts.Verbose {
		logOpts = append(logOpts, fusionlog.WithConsole(cmd.ErrOrStderr()))
	}
	flog := fusionlog.New(logOpts...)

	var (
		mu      sync.Mutex
		inputs  []ir.InputEvent
		outputs []ir.FusedOutput
		errs    []string
	)
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	cb := engine.Callbacks{
		OnInputReceived: func(ev ir.InputEvent) {
			mu.Lock()
			defer mu.Unlock()
			inputs = append(inputs, ev)
		},
		OnFusedOutput: func(out ir.FusedOutput) {
			mu.Lock()
			defer mu.Unlock()
			outputs = append(outputs, out)
			if text {
				fmt.Fprintln(w, formatOutput(out))
			}
		},
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err.Error())
		},
	}

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(cfg, cb,
		engine.WithIDGenerator(idGen),
		engine.WithRecorder(flog),
		engine.WithDebounce(bundle.Config.Debounce),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	startedAt := time.Now()
	slog.Info("engine started", "events", opts.Events)

	if err := feedEvents(ctx, eng, NewEventReader(in), sleep); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		slog.Info("interrupted, flushing pending window")
	}
	eng.Flush()

	mu.Lock()
	result := RunResult{
		Inputs:   len(inputs),
		Outputs:  append([]ir.FusedOutput{}, outputs...),
		Errors:   append([]string(nil), errs...),
		Stats:    flog.Stats(),
		Warnings: compiler.AnalyzeShadowing(cfg.Rules),
	}
	archive := store.Archive{
		Inputs:  append([]ir.InputEvent(nil), inputs...),
		Outputs: result.Outputs,
	}
	mu.Unlock()

	if st != nil {
		archive.Session = store.Session{
			ID:            uuid.Must(uuid.NewV7()).String(),
			StartedAt:     startedAt,
			ConfigHash:    configHash,
			Note:          opts.Note,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		}
		archive.Log = flog.Entries("", 0)
		// The run context may already be cancelled by a signal
		if err := st.WriteArchive(parentCtx, archive); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive session", err)
		}
		result.SessionID = archive.Session.ID
		slog.Info("session archived", "session", result.SessionID, "db", opts.Database)
	}

	return outputRun(cmd, opts, result)
}

// loadBundle compiles and validates a config directory. withDefaults forces
// the built-in rules on.
func loadBundle(dir string, withDefaults bool) (*compiler.Bundle, error) {
	loadResult, loadErrors := LoadConfig(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	bundle := loadResult.Bundle
	if withDefaults {
		bundle.Config.DefaultRules = true
	}
	if verrs := bundle.Validate(); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return bundle, nil
}

// feedEvents submits events until end of input. A cancelled context stops
// the feed with an ExitError wrapping the context error.
func feedEvents(ctx context.Context, eng *engine.Engine, r *EventReader, sleep func(context.Context, time.Duration) error) error {
	for {
		line, draft, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeBadEvents+": malformed event", err)
		}
		if d := line.Delay(); d > 0 {
			if err := sleep(ctx, d); err != nil {
				return WrapExitError(ExitFailure, "run interrupted", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return WrapExitError(ExitFailure, "run interrupted", err)
		}
		eng.ProcessInput(draft)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openEvents opens the events source. "-" and "" read from stdin.
func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func outputRun(cmd *cobra.Command, opts *RunOptions, result RunResult) error {
	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d input(s), %d output(s), %d conflict(s), %d error(s)\n",
		result.Inputs, len(result.Outputs), result.Stats.ConflictCount, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if result.SessionID != "" {
		fmt.Fprintf(w, "Session archived: %s\n", result.SessionID)
	}
	return nil
}
