package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_Address(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want string
	}{
		{"full", Transaction{Street: "Herzl", HouseNumber: "12", City: "Haifa"}, "Herzl 12, Haifa"},
		{"no number", Transaction{Street: "Herzl", City: "Haifa"}, "Herzl, Haifa"},
		{"city only", Transaction{City: "Haifa"}, "Haifa"},
		{"no city", Transaction{Street: "Herzl", HouseNumber: "12"}, "Herzl 12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.Address())
		})
	}
}

func TestTransaction_AddressKey(t *testing.T) {
	a := Transaction{Street: "Herzl", HouseNumber: "12", City: "Haifa"}
	b := Transaction{Street: "HERZL", HouseNumber: "12", City: "haifa"}
	assert.Equal(t, a.AddressKey(), b.AddressKey())
}

func TestAdjustmentCategory_Valid(t *testing.T) {
	for _, c := range AdjustmentCategories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, AdjustmentCategory("zoning").Valid())
}

func TestValuationResult_JSONIsFlat(t *testing.T) {
	floor := 3
	res := ValuationResult{
		Subject:        SubjectProperty{City: "Haifa", Area: 100, Floor: &floor},
		EstimatedValue: 2_000_000,
		Confidence:     Confidence{Score: 0.8, Label: ConfidenceHigh},
		Comparables: []ComparableEvaluation{{
			Transaction: Transaction{ID: "t1", Price: 2_000_000, Area: 100, PricePerUnitArea: 20_000},
			Adjustments: []AdjustmentFactor{{ID: "t1:size", Category: AdjustSize, Applied: true}},
		}},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "high", decoded["confidence"].(map[string]any)["label"])
	comps := decoded["comparables"].([]any)
	require.Len(t, comps, 1)
	tx := comps[0].(map[string]any)["transaction"].(map[string]any)
	assert.InDelta(t, 20_000, tx["price_per_unit_area"], 0.001)
}
