package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(t *testing.T, providerRate string, providerFixed int64, platformRate string, platformFixed, min, max int64) *Calculator {
	t.Helper()
	c, err := NewCalculator(providerRate, providerFixed, platformRate, platformFixed, min, max)
	require.NoError(t, err)
	return c
}

func TestProviderFee(t *testing.T) {
	tests := []struct {
		name   string
		rate   string
		fixed  int64
		amount int64
		want   int64
	}{
		{"standard 3.6 percent", "0.036", 0, 1000, 36},
		{"rounds half up", "0.036", 0, 1500, 54},
		{"half up at boundary", "0.005", 0, 100, 1}, // 0.5 -> 1
		{"fixed fee added per transaction", "0.036", 30, 1000, 66},
		{"zero amount", "0.036", 30, 0, 30},
		{"zero rate", "0", 0, 5000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCalculator(t, tt.rate, tt.fixed, "0", 0, 0, 0)
			got, err := c.ProviderFee(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderFee_NegativeAmountIsFatal(t *testing.T) {
	c := newTestCalculator(t, "0.036", 0, "0", 0, 0, 0)
	_, err := c.ProviderFee(-1)
	require.Error(t, err)
}

func TestProviderFee_MonotonicAndDeterministic(t *testing.T) {
	c := newTestCalculator(t, "0.036", 10, "0", 0, 0, 0)

	var prev int64 = -1
	for amount := int64(0); amount <= 10000; amount += 7 {
		fee, err := c.ProviderFee(amount)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fee, prev, "fee must be non-decreasing in amount (amount=%d)", amount)
		prev = fee

		again, err := c.ProviderFee(amount)
		require.NoError(t, err)
		assert.Equal(t, fee, again)
	}
}

func TestPlatformFee(t *testing.T) {
	tests := []struct {
		name       string
		rate       string
		fixed      int64
		min        int64
		max        int64
		totalSales int64
		count      int64
		want       int64
	}{
		{"zero rate zero fixed", "0", 0, 0, 0, 2000, 2, 0},
		{"percentage only", "0.05", 0, 0, 0, 2000, 2, 100},
		{"per transaction fixed", "0", 25, 0, 0, 2000, 3, 75},
		{"clamped to minimum", "0.01", 0, 500, 0, 2000, 1, 500},
		{"clamped to maximum", "0.10", 0, 0, 300, 10000, 1, 300},
		{"zero bound means unbounded", "0.10", 0, 0, 0, 10000, 1, 1000},
		{"rounds half up", "0.0125", 0, 0, 0, 1234, 1, 15}, // 15.425 -> 15
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCalculator(t, "0", 0, tt.rate, tt.fixed, tt.min, tt.max)
			got, err := c.PlatformFee(tt.totalSales, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlatformFee_NegativeInputsAreFatal(t *testing.T) {
	c := newTestCalculator(t, "0", 0, "0.05", 0, 0, 0)

	_, err := c.PlatformFee(-100, 1)
	require.Error(t, err)

	_, err = c.PlatformFee(100, -1)
	require.Error(t, err)
}

// Two online payments of 1000 each at 3.6% provider fee and no platform
// fee must settle to a 1928 net.
func TestEventSettlementScenario(t *testing.T) {
	c := newTestCalculator(t, "0.036", 0, "0", 0, 0, 0)

	var totalSales, providerTotal int64
	for _, amount := range []int64{1000, 1000} {
		fee, err := c.ProviderFee(amount)
		require.NoError(t, err)
		totalSales += amount
		providerTotal += fee
	}
	platformFee, err := c.PlatformFee(totalSales, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), totalSales)
	assert.Equal(t, int64(72), providerTotal)
	assert.Equal(t, int64(0), platformFee)
	assert.Equal(t, int64(1928), totalSales-providerTotal-platformFee)
}

func TestNewCalculator_RejectsBadConfig(t *testing.T) {
	_, err := NewCalculator("not-a-rate", 0, "0", 0, 0, 0)
	assert.Error(t, err)

	_, err = NewCalculator("-0.01", 0, "0", 0, 0, 0)
	assert.Error(t, err)

	_, err = NewCalculator("0.036", -5, "0", 0, 0, 0)
	assert.Error(t, err)
}
