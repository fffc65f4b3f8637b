package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"  Qty. Ordered ":   "quantity_ordered",
		"The Customer Name": "customer_name",
		"Quantité":          "quantite",
		"Ext Price":         "extended_price",
		"---":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
	assert.Equal(t, "customer", StripFieldSuffix("customer_name"))
	assert.Equal(t, "id", StripFieldSuffix("id"))
}

func TestMatchHeaderExact(t *testing.T) {
	m, ok := MatchHeader("qty", "order_item")
	require.True(t, ok)
	assert.Equal(t, "quantity", m.Field)
	assert.Equal(t, MethodExact, m.Method)
	assert.Equal(t, 1.0, m.Score)

	m, ok = MatchHeader("Unit Price", "order_item")
	require.True(t, ok)
	assert.Equal(t, "unit_price", m.Field)
}

func TestMatchHeaderPrefersFullFormOverStrippedForm(t *testing.T) {
	m, ok := MatchHeader("order_date", "order")
	require.True(t, ok)
	assert.Equal(t, "order_date", m.Field)
	assert.Equal(t, 1.0, m.Score)
}

func TestMatchHeaderFuzzy(t *testing.T) {
	m, ok := MatchHeader("custmer", "order")
	require.True(t, ok)
	assert.Equal(t, "customer", m.Field)
	assert.Equal(t, MethodLevenshtein, m.Method)
	assert.InDelta(t, 1-1.0/8.0, m.Score, 1e-4)

	m, ok = MatchHeader("item_price_usd", "order_item")
	require.True(t, ok)
	assert.Equal(t, "unit_price", m.Field)
	assert.Equal(t, MethodNGram, m.Method)
	assert.InDelta(t, 9.0/13.0, m.Score, 1e-4)
}

func TestScoreHeaderSubstring(t *testing.T) {
	matches := ScoreHeader("customer_loyalty_tier_code", "customer")
	require.Len(t, matches, 1)
	assert.Equal(t, "name", matches[0].Field)
	assert.Equal(t, MethodSubstring, matches[0].Method)
	assert.InDelta(t, 0.7*8.0/26.0, matches[0].Score, 1e-4)
}

func TestMatchHeaderUnknown(t *testing.T) {
	_, ok := MatchHeader("", "order")
	assert.False(t, ok)
	_, ok = MatchHeader("qty", "spaceship")
	assert.False(t, ok)
}

func TestSuggestAlternatives(t *testing.T) {
	alts := SuggestAlternatives("qty", "order_item", 3)
	require.NotEmpty(t, alts)
	assert.Equal(t, "quantity", alts[0].Field)
	assert.LessOrEqual(t, len(alts), 3)
	for _, a := range alts {
		assert.Greater(t, a.Score, 0.3)
	}
}

func TestKnownFieldsAndDescriptions(t *testing.T) {
	assert.Contains(t, KnownFields("order_item"), "unit_price")
	assert.NotEmpty(t, FieldDescription("order", "order_number"))
	assert.Empty(t, FieldDescription("order", "nope"))
}
