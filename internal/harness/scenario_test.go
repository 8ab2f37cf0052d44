package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/run_length.yaml")
	require.NoError(t, err)

	assert.Equal(t, "run_length", scenario.Name)
	assert.Nil(t, scenario.MaintainVersions)
	require.Len(t, scenario.Steps, 2)
	require.Len(t, scenario.Steps[0].Append, 2)
	assert.Equal(t, "player", scenario.Steps[0].Append[0].Type)
	assert.Equal(t, "p1", scenario.Steps[0].Append[0].Entity)
	assert.Equal(t, "0s", scenario.Steps[0].Append[0].At)
	assert.Equal(t, map[string]any{"name": "a"}, scenario.Steps[0].Append[0].Data)
	assert.Len(t, scenario.Assertions, 7)
}

func TestLoadScenario_MaintainVersions(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/bulk_import.yaml")
	require.NoError(t, err)
	require.NotNil(t, scenario.MaintainVersions)
	assert.False(t, *scenario.MaintainVersions)
	assert.Equal(t, "player", scenario.Steps[1].Rebuild)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: d
steps:
  - rebuild: player
`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: n
steps:
  - rebuild: player
`,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: `
name: n
description: d
`,
			want: "steps list is required",
		},
		{
			name: "unknown field",
			yaml: `
name: n
description: d
step: []
`,
			want: "failed to parse YAML",
		},
		{
			name: "append and rebuild in one step",
			yaml: `
name: n
description: d
steps:
  - rebuild: player
    append:
      - { type: player, at: 0s, data: {} }
`,
			want: "exactly one of append or rebuild",
		},
		{
			name: "unknown rebuild type",
			yaml: `
name: n
description: d
steps:
  - rebuild: wizard
`,
			want: "steps[0].rebuild",
		},
		{
			name: "bad offset",
			yaml: `
name: n
description: d
steps:
  - append:
      - { type: player, at: soon, data: {} }
`,
			want: "steps[0].append[0]: at",
		},
		{
			name: "missing data",
			yaml: `
name: n
description: d
steps:
  - append:
      - { type: player, at: 0s }
`,
			want: "data is required",
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: d
steps:
  - rebuild: player
assertions:
  - type: trace_contains
`,
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "current without data",
			yaml: `
name: n
description: d
steps:
  - rebuild: player
assertions:
  - { type: current, entity_type: player, entity: p1 }
`,
			want: "data is required for current",
		},
		{
			name: "version_at without at",
			yaml: `
name: n
description: d
steps:
  - rebuild: player
assertions:
  - { type: version_at, entity_type: player, entity: p1, version: 1 }
`,
			want: "at is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
