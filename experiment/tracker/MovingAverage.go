package tracker

import (
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/poleq/utils/intutils"
)

// MovingAverage computes the moving average of data over a trailing
// window. Entry i of the returned slice is the mean of the window of
// data ending at entry i. Windows are shortened at the beginning of
// the data, so the first entry of the returned slice is always equal
// to the first entry of data.
func MovingAverage(data []float64, window int) []float64 {
	if window < 1 || len(data) == 0 {
		return nil
	}

	averages := make([]float64, len(data))
	for i := range data {
		start := intutils.Max(0, i-window+1)
		averages[i] = stat.Mean(data[start:i+1], nil)
	}

	return averages
}
