package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a config file plus the directory holding its store.
type testEnv struct {
	dir    string
	config string
}

// newTestEnv writes a config using backend with batch_size 2 and the given
// extra YAML lines.
func newTestEnv(t *testing.T, backend string, extra ...string) testEnv {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "store")
	if backend == "sqlite" {
		path = filepath.Join(dir, "events.db")
	}

	content := fmt.Sprintf("store:\n  backend: %s\n  path: %s\n  batch_size: 2\n", backend, path)
	content += strings.Join(extra, "\n") + "\n"

	cfgPath := filepath.Join(dir, "evtrack.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return testEnv{dir: dir, config: cfgPath}
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// run executes a command that must succeed.
func (e testEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, nil, append([]string{"--config", e.config}, args...)...)
	require.NoError(t, err, "evtrack %v: %s", args, out)
	return out
}

// inspect returns the decoded inspect payload.
func (e testEnv) inspect(t *testing.T) InspectResult {
	t.Helper()
	out := e.run(t, "--format", "json", "inspect")

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}
