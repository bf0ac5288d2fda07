package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/outbreak-sim/outbreak-sim/epi"
)

// LoadObservedCSV reads an observed time series from a CSV file with rows
//
//	day,cumulative_cases,cumulative_deaths
//
// (a header row is skipped if present). Cumulative deaths are mapped to
// daily deaths by first-differencing, with the first value taken as-is. A
// decreasing cumulative death count is malformed input, not data to fix up.
func LoadObservedCSV(path string) (epi.ObservationSeries, error) {
	var series epi.ObservationSeries

	f, err := os.Open(path)
	if err != nil {
		return series, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return series, fmt.Errorf("reading %s: %w", path, err)
	}

	var cumulativeDeaths []int64
	for i, rec := range records {
		if len(rec) != 3 {
			return series, fmt.Errorf("%s line %d: want 3 columns, got %d", path, i+1, len(rec))
		}
		if i == 0 {
			if _, err := strconv.ParseInt(rec[0], 10, 64); err != nil {
				// header row
				continue
			}
		}
		cases, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return series, fmt.Errorf("%s line %d: bad case count %q", path, i+1, rec[1])
		}
		deaths, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return series, fmt.Errorf("%s line %d: bad death count %q", path, i+1, rec[2])
		}
		if cases < 0 || deaths < 0 {
			return series, fmt.Errorf("%s line %d: negative count", path, i+1)
		}
		series.CumulativeObservedCases = append(series.CumulativeObservedCases, cases)
		cumulativeDeaths = append(cumulativeDeaths, deaths)
	}
	if len(cumulativeDeaths) < 2 {
		return series, fmt.Errorf("%s: need at least 2 days of data, got %d", path, len(cumulativeDeaths))
	}

	series.DailyDeaths = make([]int64, len(cumulativeDeaths))
	series.DailyDeaths[0] = cumulativeDeaths[0]
	for t := 1; t < len(cumulativeDeaths); t++ {
		diff := cumulativeDeaths[t] - cumulativeDeaths[t-1]
		if diff < 0 {
			return series, fmt.Errorf("%s: cumulative deaths decrease at day %d", path, t)
		}
		series.DailyDeaths[t] = diff
	}
	return series, nil
}
