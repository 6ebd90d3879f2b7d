package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenly-backend/internal/model"
)

func TestCalculateRecomputesTotals(t *testing.T) {
	p := NewPricingService()

	resp := p.Calculate([]model.ElementInput{
		{ID: "grass", Quantity: decimal.NewFromInt(3)},
	})

	var grass model.GreeningElement
	for _, el := range resp.Elements {
		if el.ID == "grass" {
			grass = el
		}
	}

	assert.True(t, grass.Total.Equal(decimal.RequireFromString("7.5")),
		"expected 3 × 2.5 = 7.5, got %s", grass.Total)
	assert.True(t, resp.GrandTotal.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, 1, resp.Active)
}

func TestGrandTotalExcludesZeroQuantity(t *testing.T) {
	p := NewPricingService()

	resp := p.Calculate([]model.ElementInput{
		{ID: "trees", Quantity: decimal.NewFromInt(2)},
		{ID: "bushes", Quantity: decimal.Zero},
		{ID: "mulch", Quantity: decimal.NewFromInt(1)},
	})

	// 2×125 + 1×45，零数量的 bushes 不计入
	assert.True(t, resp.GrandTotal.Equal(decimal.NewFromInt(295)),
		"got %s", resp.GrandTotal)
	assert.Equal(t, 2, resp.Active)

	// 零数量的行项仍然留在目录里
	found := false
	for _, el := range resp.Elements {
		if el.ID == "bushes" {
			found = true
			assert.True(t, el.Total.IsZero())
		}
	}
	assert.True(t, found)
}

func TestCalculateOverridesUnitPrice(t *testing.T) {
	p := NewPricingService()

	resp := p.Calculate([]model.ElementInput{
		{ID: "trees", Quantity: decimal.NewFromInt(1), PricePerUnit: decimal.NewFromInt(200)},
	})

	for _, el := range resp.Elements {
		if el.ID == "trees" {
			assert.True(t, el.Total.Equal(decimal.NewFromInt(200)))
		}
	}
}

func TestCalculateKeepsCustomElements(t *testing.T) {
	p := NewPricingService()

	resp := p.Calculate([]model.ElementInput{
		{ID: "pond", Quantity: decimal.NewFromInt(1), PricePerUnit: decimal.NewFromInt(500)},
	})

	var pond *model.GreeningElement
	for i := range resp.Elements {
		if resp.Elements[i].ID == "pond" {
			pond = &resp.Elements[i]
		}
	}

	require.NotNil(t, pond)
	assert.True(t, pond.IsCustom)
	assert.True(t, pond.Total.Equal(decimal.NewFromInt(500)))
}

func TestRecomputeIgnoresStoredTotals(t *testing.T) {
	p := NewPricingService()

	resp := p.Recompute([]model.GreeningElement{
		{
			ID:           "grass",
			Name:         "Grass",
			Quantity:     decimal.NewFromInt(2),
			PricePerUnit: decimal.NewFromInt(10),
			Total:        decimal.NewFromInt(9999), // 被污染的 total 必须被覆盖
		},
	})

	assert.True(t, resp.Elements[0].Total.Equal(decimal.NewFromInt(20)))
	assert.True(t, resp.GrandTotal.Equal(decimal.NewFromInt(20)))
}

func TestDefaultElementsStartAtZero(t *testing.T) {
	for _, el := range DefaultElements() {
		assert.True(t, el.Quantity.IsZero(), "element %s should start with zero quantity", el.ID)
		assert.True(t, el.PricePerUnit.IsPositive())
		assert.False(t, el.IsCustom)
	}
}
