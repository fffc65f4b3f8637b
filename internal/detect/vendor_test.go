package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receipt = []string{
	"FRESH FARMS MARKET",
	"STORE #0412",
	"1200 Main Street, Springfield IL 62701",
	"Tel: (217) 555-0134",
	"www.freshfarms.com",
	"GST: 81234-RT",
}

func TestExtractSignals(t *testing.T) {
	sigs := ExtractSignals(receipt)

	byKind := map[SignalKind]string{}
	for _, s := range sigs {
		byKind[s.Kind] = s.Value
	}
	assert.Equal(t, "0412", byKind[SignalStoreNumber])
	assert.Equal(t, "2175550134", byKind[SignalPhone])
	assert.Equal(t, "freshfarms.com", byKind[SignalURL])
	assert.Equal(t, "81234-RT", byKind[SignalTaxID])
	assert.Equal(t, "62701", byKind[SignalPostal])
	assert.Equal(t, AddressHash("1200 Main St"), byKind[SignalAddressHash])
}

func TestExtractSignalsEmailAndBrand(t *testing.T) {
	sigs := ExtractSignals([]string{"Thanks for shopping at COSTCO", "orders@Costco.com", "", "call 555-0134"})
	assert.Contains(t, sigs, Signal{Kind: SignalEmail, Value: "orders@costco.com", Raw: "orders@Costco.com"})
	assert.Contains(t, sigs, Signal{Kind: SignalBrand, Value: "costco", Raw: "COSTCO"})
	for _, s := range sigs {
		assert.NotEqual(t, SignalPhone, s.Kind, "seven digits is not a phone number")
		assert.NotEqual(t, SignalURL, s.Kind, "email domains are not reported as urls")
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "12 main st", NormalizeAddress("12 Main Street."))
	assert.Equal(t, "9 oak blvd", NormalizeAddress("9  Oak   Boulevard"))
	assert.Equal(t, AddressHash("12 Main St"), AddressHash("12 main street"))
}

func TestIdentify(t *testing.T) {
	idx := NewStaticIndex()
	idx.Add("fresh", SignalPhone, "+1 217-555-0134")
	idx.Add("fresh", SignalURL, "https://www.freshfarms.com/")
	idx.Add("fresh", SignalStoreNumber, "0412")
	idx.Add("other", SignalStoreNumber, "0412")

	got, err := NewIdentifier(idx).Identify(context.Background(), receipt)
	require.NoError(t, err)

	require.True(t, got.Identified)
	assert.Equal(t, "fresh", got.VendorID)
	require.Len(t, got.Ranking, 2)
	assert.Equal(t, 12.0, got.Ranking[0].Score)
	assert.Equal(t, 1.0, got.Ranking[1].Score)
	// 1 - exp(-11/12)
	assert.Equal(t, 0.6, got.Confidence)
}

func TestIdentifyTieHasZeroConfidence(t *testing.T) {
	idx := NewStaticIndex()
	idx.Add("a", SignalStoreNumber, "0412")
	idx.Add("b", SignalStoreNumber, "0412")

	got, err := NewIdentifier(idx).Identify(context.Background(), receipt)
	require.NoError(t, err)
	assert.True(t, got.Identified)
	assert.Equal(t, "a", got.VendorID)
	assert.Zero(t, got.Confidence)
}

func TestIdentifyNoCandidates(t *testing.T) {
	got, err := NewIdentifier(NewStaticIndex()).Identify(context.Background(), receipt)
	require.NoError(t, err)
	assert.False(t, got.Identified)
	assert.NotEmpty(t, got.Signals)
	assert.Empty(t, got.Ranking)
}

type failingIndex struct{}

func (failingIndex) Lookup(context.Context, SignalKind, string) ([]string, error) {
	return nil, errors.New("index offline")
}

func TestIdentifyLookupError(t *testing.T) {
	_, err := NewIdentifier(failingIndex{}).Identify(context.Background(), receipt)
	assert.ErrorContains(t, err, "index offline")
}

func TestIdentifyEmailMatchesDomain(t *testing.T) {
	idx := NewStaticIndex()
	idx.Add("costco", SignalURL, "costco.com")

	got, err := NewIdentifier(idx).Identify(context.Background(), []string{"orders@costco.com"})
	require.NoError(t, err)
	assert.Equal(t, "costco", got.VendorID)
	assert.Equal(t, 4.0, got.Ranking[0].Score)
}
