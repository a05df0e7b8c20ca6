package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Testdata(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/event_limit.yaml")
	require.NoError(t, err)

	assert.Equal(t, "event_limit", s.Name)
	assert.Equal(t, "limit:3", s.Policy)
	assert.Equal(t, StoreSpec{Kind: StoreBatch, BatchSize: 2}, s.Store)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, "view_home", s.Steps[0].Track)
	assert.Equal(t, []string{"checkout"}, s.ExpectStored)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_PropsAndExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: props
description: props survive parsing
fail_deliveries: [2]
steps:
  - track: signup
    props: { plan: pro, country: NZ }
  - flush: true
    expect_error: DELIVERY_FAILURE
expect_stored: []
expect_delivered:
  - [signup]
`))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"plan": "pro", "country": "NZ"}, s.Steps[0].Props)
	assert.Equal(t, "DELIVERY_FAILURE", s.Steps[1].ExpectError)
	assert.Equal(t, []int{2}, s.FailDeliveries)
	assert.NotNil(t, s.ExpectStored, "an explicit empty list is checked")
	assert.Empty(t, s.ExpectStored)
	assert.Equal(t, [][]string{{"signup"}}, s.ExpectDelivered)
}

func TestParseScenario_OmittedExpectationsUnchecked(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nsteps:\n  - flush: true\n"))
	require.NoError(t, err)
	assert.Nil(t, s.ExpectStored)
	assert.Nil(t, s.ExpectDelivered)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nstep:\n  - flush: true\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps:\n  - flush: true\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps:\n  - flush: true\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "bad policy",
			yaml:    "name: n\ndescription: d\npolicy: limit:0\nsteps:\n  - flush: true\n",
			wantErr: "policy",
		},
		{
			name:    "unknown store kind",
			yaml:    "name: n\ndescription: d\nstore: { kind: disk }\nsteps:\n  - flush: true\n",
			wantErr: "store.kind",
		},
		{
			name:    "batch without size",
			yaml:    "name: n\ndescription: d\nstore: { kind: batch }\nsteps:\n  - flush: true\n",
			wantErr: "store.batch_size",
		},
		{
			name:    "zero delivery attempt",
			yaml:    "name: n\ndescription: d\nfail_deliveries: [0]\nsteps:\n  - flush: true\n",
			wantErr: "fail_deliveries[0]",
		},
		{
			name:    "empty step",
			yaml:    "name: n\ndescription: d\nsteps:\n  - expect_error: READ_FAILURE\n",
			wantErr: "steps[0]: exactly one",
		},
		{
			name:    "two actions",
			yaml:    "name: n\ndescription: d\nsteps:\n  - flush: true\n    clear: true\n",
			wantErr: "steps[0]: exactly one",
		},
		{
			name:    "props without track",
			yaml:    "name: n\ndescription: d\nsteps:\n  - flush: true\n    props: { a: b }\n",
			wantErr: "props only apply to track",
		},
		{
			name:    "expect_error on tick",
			yaml:    "name: n\ndescription: d\nsteps:\n  - tick: true\n    expect_error: DELIVERY_FAILURE\n",
			wantErr: "expect_error does not apply to tick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_flush.yaml", "a_track.yml", "notes.txt", "c_clear.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "a_track.golden"), []byte("x"), 0o644))

	all, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a_track.yml"),
		filepath.Join(dir, "b_flush.yaml"),
		filepath.Join(dir, "c_clear.yaml"),
	}, all)

	filtered, err := FindScenarios(dir, "b_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b_flush.yaml")}, filtered)

	_, err = FindScenarios(dir, "[")
	require.Error(t, err)
}
