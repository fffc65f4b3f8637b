package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffPropertiesOnlyIncomingPaths(t *testing.T) {
	stored := map[string]any{
		"price":    4.5,
		"category": "Coffee",
		"notes":    "kept by hand",
		"size":     map[string]any{"ml": float64(250)},
	}
	incoming := map[string]any{
		"price":    4.75,
		"category": "Coffee",
		"sku":      "LAT-1",
		"size":     map[string]any{"ml": float64(300)},
	}

	changes, err := DiffProperties(stored, incoming)
	require.NoError(t, err)
	assert.Equal(t, []PropertyChange{
		{Path: "price", Stored: "4.5", Incoming: "4.75"},
		{Path: "size.ml", Stored: "250", Incoming: "300"},
		{Path: "sku", Incoming: `"LAT-1"`},
	}, changes)
}

func TestDiffPropertiesIdentical(t *testing.T) {
	props := map[string]any{"tags": []any{"a", "b"}, "price": 2.0}
	changes, err := DiffProperties(props, props)
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, err = DiffProperties(props, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestPropertyDriftString(t *testing.T) {
	d := PropertyDrift{
		Kind:       KindSellable,
		NaturalKey: "name:latte",
		Changes: []PropertyChange{
			{Path: "price", Stored: "4.5", Incoming: "4.75"},
			{Path: "sku", Incoming: `"LAT-1"`},
		},
	}
	assert.Equal(t, "--- sellable name:latte (stored)\n"+
		"+++ sellable name:latte (incoming)\n"+
		"-price: 4.5\n"+
		"+price: 4.75\n"+
		"+sku: \"LAT-1\"\n", d.String())
}
