package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDependencies_EmptyGraph(t *testing.T) {
	assert.NoError(t, ValidateDependencies(nil))
	assert.NoError(t, ValidateDependencies(map[string][]string{}))
}

func TestValidateDependencies_ValidDAG(t *testing.T) {
	deps := map[string][]string{
		"sentiment-precache": {"morning-scan"},
		"outcome-recorder":   {"morning-scan"},
		"evening-summary":    {"outcome-recorder", "sentiment-precache"},
	}

	assert.NoError(t, ValidateDependencies(deps))
}

func TestValidateDependencies_ThreeNodeCycle(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}

	err := ValidateDependencies(deps)
	require.Error(t, err)

	// The error names every node on the cycle
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Nodes)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
	assert.Contains(t, err.Error(), "c")
}

func TestValidateDependencies_SelfCycle(t *testing.T) {
	err := ValidateDependencies(map[string][]string{"a": {"a"}})
	require.Error(t, err)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a"}, cycle.Nodes)
}

func TestValidateDependencies_CycleBehindValidNodes(t *testing.T) {
	deps := map[string][]string{
		"ok":  {},
		"x":   {"y"},
		"y":   {"x"},
		"ok2": {"ok"},
	}

	err := ValidateDependencies(deps)
	require.Error(t, err)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Len(t, cycle.Nodes, 2)
}

func TestValidateDependencies_SharedPrerequisiteIsNotACycle(t *testing.T) {
	// Diamond shape: two paths to the same prerequisite are fine.
	deps := map[string][]string{
		"d": {"b", "c"},
		"b": {"a"},
		"c": {"a"},
	}

	assert.NoError(t, ValidateDependencies(deps))
}
