package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeTrace synthesizes a trace into a temp file and returns its path.
func writeTrace(t *testing.T, args ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	_, _, err := runCLI(t, "", append([]string{"synth", "-o", path}, args...)...)
	require.NoError(t, err)
	return path
}

// TestSynthReplay verifies a synthesized trace replays without mismatches
// under several engine configurations.
func TestSynthReplay(t *testing.T) {
	path := writeTrace(t, "--depth", "4", "--trip", "3", "--footprint", "1024")

	tests := []struct {
		name string
		args []string
	}{
		{"defaults", nil},
		{"bypass", []string{"--cache-lines", "0"}},
		{"small cache", []string{"--cache-lines", "8", "--cache-depth", "1"}},
		{"compressed", []string{"--compress", "--active-set", "1", "--gc-period", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runCLI(t, "", append([]string{"replay", path, "--strict"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "trace:        synth")
			assert.Contains(t, out, ", 0 mismatches")
			assert.Contains(t, out, "depth 4")
		})
	}
}

// TestReplayJSON verifies the --json report decodes and carries counters.
func TestReplayJSON(t *testing.T) {
	path := writeTrace(t, "--name", "json")
	out, _, err := runCLI(t, "", "replay", path, "--json")
	require.NoError(t, err)

	var report struct {
		Trace struct {
			Name       string `json:"name"`
			Records    int    `json:"records"`
			Gets       int    `json:"gets"`
			Mismatches int    `json:"mismatches"`
		} `json:"trace"`
		Stats struct {
			Reads  uint64
			Writes uint64
		} `json:"stats"`
		HitRate float64 `json:"hit_rate"`
	}
	require.NoError(t, sonnet.Unmarshal([]byte(out), &report))
	assert.Equal(t, "json", report.Trace.Name)
	assert.Positive(t, report.Trace.Records)
	assert.Equal(t, uint64(report.Trace.Gets), report.Stats.Reads)
	assert.Zero(t, report.Trace.Mismatches)
	assert.Positive(t, report.HitRate)
}

// TestReplayStdin verifies "-" reads the trace from stdin.
func TestReplayStdin(t *testing.T) {
	input := `{"format":"v1.2.0","name":"stdin"}
{"op":"enter","level":0}
{"op":"set","addr":64,"values":[4]}
{"op":"get","addr":64,"expect":[4]}
`
	out, _, err := runCLI(t, input, "replay", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "stdin, 3 records")
	assert.Contains(t, out, "1 gets, 0 mismatches")
}

// TestReplayStrictMismatch verifies --strict fails on a wrong expectation.
func TestReplayStrictMismatch(t *testing.T) {
	input := `{"format":"v1.0.0"}
{"op":"enter","level":0}
{"op":"get","addr":64,"expect":[4]}
`
	_, _, err := runCLI(t, input, "replay", "-", "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 checked gets mismatched")

	_, _, err = runCLI(t, input, "replay", "-")
	assert.NoError(t, err)
}

// TestReplayErrors verifies input failures surface as errors.
func TestReplayErrors(t *testing.T) {
	_, _, err := runCLI(t, "", "replay", filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorContains(t, err, "failed to open trace")

	_, _, err = runCLI(t, `{"format":"v2.0.0"}`+"\n", "replay", "-")
	assert.ErrorContains(t, err, "unsupported format")

	_, _, err = runCLI(t, `{"format":"v1.0.0"}`+"\n", "replay", "-", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid --log-level")

	_, _, err = runCLI(t, `{"format":"v1.0.0"}`+"\n", "replay", "-", "--cache-lines", "3")
	assert.ErrorContains(t, err, "power of two")
}

// TestReplayLogging verifies engine logs reach stderr at the chosen level.
func TestReplayLogging(t *testing.T) {
	_, stderr, err := runCLI(t, `{"format":"v1.0.0"}`+"\n", "replay", "-", "--log-level", "info")
	require.NoError(t, err)
	assert.Contains(t, stderr, "shadow memory ready")
	assert.Contains(t, stderr, "replay finished")
}

// TestSynthStdout verifies synth writes a readable trace to stdout.
func TestSynthStdout(t *testing.T) {
	out, _, err := runCLI(t, "", "synth", "--depth", "1", "--trip", "2", "--accesses", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// header, then per iteration: enter, get, set
	require.Len(t, lines, 1+2*3)
	assert.Contains(t, lines[0], `"format":"v1.0.0"`)

	_, _, err = runCLI(t, "", "synth", "--width", "2")
	assert.ErrorContains(t, err, "invalid --width")
}

// TestSynthOutputFile verifies -o writes the file and reports the count.
func TestSynthOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	_, stderr, err := runCLI(t, "", "synth", "-o", path, "--depth", "1", "--trip", "1", "--accesses", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote 3 records")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, bytes.Count(data, []byte("\n")))
}

// TestVersion verifies the version command output.
func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "shadowsim dev")
	assert.Contains(t, out, "64 levels")
	assert.Contains(t, out, "trace format: v1.0.0")
}
