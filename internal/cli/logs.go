package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/store"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Database string
	Session  string // optional - latest session when empty
	Kind     string
	Limit    int
}

// LogsResult is the JSON payload of the logs command.
type LogsResult struct {
	SessionID string            `json:"session_id"`
	Entries   []fusionlog.Entry `json:"entries"`
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show archived fusion log entries",
		Long: `Show the fusion log archived with a session.

Without --session the most recently started session is shown. --kind
restricts output to input, fusion, conflict or error entries. --limit keeps
only the newest entries.

Examples:
  fusion logs --db ./fusion.db
  fusion logs --db ./fusion.db --kind fusion --limit 20
  fusion logs --db ./fusion.db --session 0190f3c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "entry kind (input|fusion|conflict|error)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the newest n entries")

	return cmd
}

func runLogs(opts *LogsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	kind, err := fusionlog.ParseKind(opts.Kind)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "limit must be non-negative")
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

	entries, err := st.ReadLogEntries(ctx, sess.ID, kind, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log entries", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(LogsResult{SessionID: sess.ID, Entries: entries})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session %s (%d entries)\n", sess.ID, len(entries))
	for _, e := range entries {
		writeLogEntry(w, e)
	}
	return nil
}

// writeLogEntry renders one entry as a text line.
func writeLogEntry(w io.Writer, e fusionlog.Entry) {
	var detail string
	switch e.Kind {
	case fusionlog.KindInput:
		detail = fmt.Sprintf("%s %s priority=%d", channelName(e.InputType), e.InputID, e.Priority)
	case fusionlog.KindFusion:
		types := make([]string, len(e.InputTypes))
		for i, t := range e.InputTypes {
			types[i] = channelName(t)
		}
		rule := e.RuleID
		if rule == "" {
			rule = "default"
		}
		detail = fmt.Sprintf("%s rule=%s", strings.Join(types, " + "), rule)
	case fusionlog.KindConflict:
		detail = fmt.Sprintf("strategy=%s resolved=%s", e.Strategy, e.ResolvedID)
	case fusionlog.KindError:
		detail = fmt.Sprintf("%s: %s", e.Context, e.Message)
	}

	fmt.Fprintf(w, "%s  %-8s  %s", e.Timestamp.Format(time.RFC3339Nano), e.Kind, detail)
	if e.Preview != "" {
		fmt.Fprintf(w, "  %s", e.Preview)
	}
	fmt.Fprintln(w)
}

// openExistingStore opens a database that must already exist. store.Open
// would otherwise create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeNotFound+": database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// resolveSession returns the named session, or the latest one when id is
// empty.
func resolveSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	var (
		sess store.Session
		err  error
	)
	if id == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.ReadSession(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		if id == "" {
			return store.Session{}, NewExitError(ExitCommandError, "no sessions in database")
		}
		return store.Session{}, NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", id))
	}
	if err != nil {
		return store.Session{}, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}
