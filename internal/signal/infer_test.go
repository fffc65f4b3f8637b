package signal

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intColumn(n int) []string {
	vals := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		vals = append(vals, strconv.Itoa(i*7))
	}
	return vals
}

func TestInferDataTypeIntegerColumn(t *testing.T) {
	sig := InferDataType(intColumn(20))
	assert.Equal(t, TypeInteger, sig.Type)
	assert.Equal(t, 1.0, sig.Confidence)
	assert.Equal(t, 20, sig.SampleSize)
}

func TestInferDataTypeStrayValueLowersConfidence(t *testing.T) {
	vals := append(intColumn(19), "n/a")
	sig := InferDataType(vals)
	require.Equal(t, TypeInteger, sig.Type)
	assert.LessOrEqual(t, sig.Confidence, sig.Scores[TypeInteger])
	assert.InDelta(t, 0.95, sig.Confidence, 1e-9)
}

func TestInferDataTypeEmptyAndNull(t *testing.T) {
	assert.Equal(t, TypeUnknown, InferDataType(nil).Type)

	sig := InferDataType([]string{"", "  ", ""})
	assert.Equal(t, TypeNullable, sig.Type)
	assert.Equal(t, 1.0, sig.Confidence)
}

func TestInferDataTypeFamilies(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   DataType
		format string
	}{
		{"boolean", []string{"yes", "No", "Y", "n", "TRUE"}, TypeBoolean, ""},
		{"decimal", []string{"4.50", "12.00", "$1,200.99", "0.5"}, TypeDecimal, ""},
		{"iso date", []string{"2024-01-15", "2024-02-01", "2024-03-31"}, TypeDate, "2006-01-02"},
		{"us date", []string{"1/15/2024", "12/01/2024"}, TypeDate, "01/02/2006"},
		{"datetime", []string{"2024-01-15 10:30:00", "2024-01-16 11:00:00"}, TypeDatetime, "2006-01-02 15:04:05"},
		{"time", []string{"10:30", "9:15 PM", "23:59:59"}, TypeTime, ""},
		{"email", []string{"ana@example.com", "bo@shop.co.uk"}, TypeEmail, ""},
		{"url", []string{"https://example.com", "http://shop.io/a"}, TypeURL, ""},
		{"percentage", []string{"12%", "7.5%", "100%"}, TypePercentage, ""},
		{"string", []string{"Latte", "Mocha", "Scone"}, TypeString, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := InferDataType(tc.values)
			assert.Equal(t, tc.want, sig.Type)
			assert.Equal(t, 1.0, sig.Confidence)
			assert.Equal(t, tc.format, sig.Format)
		})
	}
}

func TestInferDataTypeSamplesFirstHundred(t *testing.T) {
	vals := intColumn(100)
	for i := 0; i < 50; i++ {
		vals = append(vals, "text")
	}
	sig := InferDataType(vals)
	assert.Equal(t, TypeInteger, sig.Type)
	assert.Equal(t, SampleSize, sig.SampleSize)
}

func TestAnalyzeDistributionNumeric(t *testing.T) {
	d := AnalyzeDistribution([]string{"3", "1", "", "2", "4", "5"})
	assert.Equal(t, 6, d.Total)
	assert.Equal(t, 1, d.Nulls)
	assert.InDelta(t, 1.0/6.0, d.NullRatio, 1e-9)
	require.NotNil(t, d.Numeric)
	assert.Equal(t, 1.0, d.Numeric.Min)
	assert.Equal(t, 5.0, d.Numeric.Max)
	assert.Equal(t, 3.0, d.Numeric.Median)
	assert.True(t, d.Sequential)
	assert.Nil(t, d.Length)
}

func TestAnalyzeDistributionStrings(t *testing.T) {
	d := AnalyzeDistribution([]string{"Latte", "Latte", "Mocha", "Tea", "Latte"})
	assert.False(t, d.Sequential)
	require.NotNil(t, d.Length)
	assert.Equal(t, 3, d.Length.Min)
	assert.Equal(t, 5, d.Length.Max)
	assert.Equal(t, 3, d.Unique)
	require.NotEmpty(t, d.TopValues)
	assert.Equal(t, ValueCount{Value: "Latte", Count: 3}, d.TopValues[0])
}

func TestAnalyzeDistributionHighCardinalityHasNoHistogram(t *testing.T) {
	d := AnalyzeDistribution(intColumn(30))
	assert.Empty(t, d.TopValues)
	assert.Equal(t, 1.0, d.UniquenessRatio)
}

func TestIsSequential(t *testing.T) {
	assert.True(t, IsSequential([]float64{5, 1, 2, 4, 3}))
	assert.False(t, IsSequential([]float64{1, 1, 2, 2, 3, 3}))
	assert.False(t, IsSequential([]float64{7}))
}
