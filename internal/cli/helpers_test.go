package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// pointAndSpeakDir is a shared CUE config at the repo root.
var pointAndSpeakDir = filepath.Join("..", "..", "testdata", "configs", "point_and_speak")

// scenariosDir holds the shared YAML scenarios.
var scenariosDir = filepath.Join("..", "..", "testdata", "scenarios")

// writeConfig writes src as fusion.cue in a fresh directory.
func writeConfig(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fusion.cue"), []byte(src), 0o644))
	return dir
}

// execute runs cmd with args and returns its combined output.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
