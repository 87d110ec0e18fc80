package prices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostExclVAT(t *testing.T) {
	tests := []struct {
		rate    string
		days    int
		want    int64
		wantErr bool
	}{
		{rate: RateIndividual, days: 1, want: 6500},
		{rate: RateIndividual, days: 3, want: 12500},
		{rate: RateCorporate, days: 2, want: 19500},
		{rate: RateUnwaged, days: 5, want: 10000},
		{rate: RateFree, days: 3, want: 0},
		{rate: "student", days: 1, wantErr: true},
		{rate: RateIndividual, days: 0, wantErr: true},
	}

	for _, tt := range tests {
		got, err := CostExclVAT(tt.rate, tt.days)
		if tt.wantErr {
			assert.Error(t, err, tt.rate)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s x %d", tt.rate, tt.days)
	}
}

func TestCostInclVAT(t *testing.T) {
	cost, err := CostInclVAT(RateIndividual, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), cost)
	assert.Equal(t, int64(0), InclVAT(0))
}

func TestRates(t *testing.T) {
	rates := Rates()
	assert.NotContains(t, rates, RateFree)
	assert.Equal(t, []string{RateCorporate, RateEducatorEmployer, RateEducatorSelf, RateIndividual, RateUnwaged}, rates)
	assert.True(t, Purchasable(RateIndividual))
	assert.False(t, Purchasable(RateFree))
	assert.True(t, Known(RateFree))
}
