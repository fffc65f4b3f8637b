package signal

import (
	"sort"
	"unicode/utf8"
)

const histogramCardinality = 20

// AnalyzeDistribution summarises nulls, uniqueness and value shape of a column.
func AnalyzeDistribution(values []string) DistributionSignal {
	vals := nonEmpty(values)
	d := DistributionSignal{
		Total:   len(values),
		NonNull: len(vals),
		Nulls:   len(values) - len(vals),
	}
	if d.Total > 0 {
		d.NullRatio = ratio(d.Nulls, d.Total)
	}

	counts := make(map[string]int, len(vals))
	order := make([]string, 0)
	for _, v := range vals {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	d.Unique = len(counts)
	d.UniquenessRatio = ratio(d.Unique, d.NonNull)

	if len(vals) == 0 {
		return d
	}

	if nums, ok := allNumeric(vals); ok {
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		sum := 0.0
		for _, n := range sorted {
			sum += n
		}
		d.Numeric = &NumericRange{
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
			Mean:   sum / float64(len(sorted)),
			Median: median(sorted),
		}
		d.Sequential = IsSequential(nums)
	} else {
		lr := LengthRange{Min: -1}
		total := 0
		for _, v := range vals {
			n := utf8.RuneCountInString(v)
			if lr.Min < 0 || n < lr.Min {
				lr.Min = n
			}
			if n > lr.Max {
				lr.Max = n
			}
			total += n
		}
		lr.Avg = float64(total) / float64(len(vals))
		d.Length = &lr
	}

	if d.Unique > 0 && d.Unique < histogramCardinality {
		top := make([]ValueCount, 0, len(order))
		for _, v := range order {
			top = append(top, ValueCount{Value: v, Count: counts[v]})
		}
		sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
		if len(top) > 5 {
			top = top[:5]
		}
		d.TopValues = top
	}
	return d
}

// IsSequential is true when at least 80% of the gaps between sorted values equal 1.
func IsSequential(nums []float64) bool {
	if len(nums) < 2 {
		return false
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	ones := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] == 1 {
			ones++
		}
	}
	return ratio(ones, len(sorted)-1) >= 0.8
}

func allNumeric(vals []string) ([]float64, bool) {
	nums := make([]float64, 0, len(vals))
	for _, v := range vals {
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		nums = append(nums, f)
	}
	return nums, true
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Median returns the median of unsorted values.
func Median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return median(sorted)
}
