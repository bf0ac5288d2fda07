package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadObservedCSV_FirstDifferencesDeaths(t *testing.T) {
	path := writeTempFile(t, "obs.csv", `day,cumulative_cases,cumulative_deaths
0,3,1
1,5,1
2,9,4
3,8,6
`)

	series, err := LoadObservedCSV(path)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 5, 9, 8}, series.CumulativeObservedCases)
	// First value taken as-is, then differences.
	assert.Equal(t, []int64{1, 0, 3, 2}, series.DailyDeaths)
}

func TestLoadObservedCSV_NoHeader(t *testing.T) {
	path := writeTempFile(t, "obs.csv", "0,2,0\n1,4,1\n")

	series, err := LoadObservedCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, series.CumulativeObservedCases)
	assert.Equal(t, []int64{0, 1}, series.DailyDeaths)
}

func TestLoadObservedCSV_RejectsDecreasingDeaths(t *testing.T) {
	path := writeTempFile(t, "obs.csv", "0,2,5\n1,4,3\n")

	_, err := LoadObservedCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrease")
}

func TestLoadObservedCSV_RejectsNegativeCounts(t *testing.T) {
	path := writeTempFile(t, "obs.csv", "0,-2,0\n1,4,1\n")

	_, err := LoadObservedCSV(path)
	require.Error(t, err)
}

func TestLoadObservedCSV_RejectsShortSeries(t *testing.T) {
	path := writeTempFile(t, "obs.csv", "0,2,0\n")

	_, err := LoadObservedCSV(path)
	require.Error(t, err)
}

func TestLoadObservedCSV_MissingFile(t *testing.T) {
	_, err := LoadObservedCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
