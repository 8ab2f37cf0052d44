package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestNewSnapshot_LabelsHashesInOrder(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/out_of_order.yaml")
	require.NoError(t, err)
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)

	snap := NewSnapshot("out_of_order", result)
	require.Len(t, snap.Histories, 2)

	var hashes []string
	for _, h := range snap.Histories {
		for _, v := range h.Versions {
			hashes = append(hashes, v.Hash)
		}
	}
	assert.Equal(t, []string{"h1", "h2", "h1", "h3", "h4"}, hashes)
	assert.Empty(t, snap.Histories[0].Versions[2].ValidTo)
}
