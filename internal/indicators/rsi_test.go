package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI_InsufficientData(t *testing.T) {
	rsi := NewRSI(14)
	_, err := rsi.Calculate([]float64{100, 101, 102})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRSI_AllGains(t *testing.T) {
	rsi := NewRSI(3)
	value, err := rsi.Calculate([]float64{100, 101, 102, 103})
	require.NoError(t, err)
	assert.Equal(t, 100.0, value)
}

func TestRSI_AllLosses(t *testing.T) {
	rsi := NewRSI(3)
	value, err := rsi.Calculate([]float64{103, 102, 101, 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestRSI_BalancedMoves(t *testing.T) {
	// Equal gains and losses -> RS = 1 -> RSI = 50.
	rsi := NewRSI(4)
	value, err := rsi.Calculate([]float64{100, 102, 100, 102, 100})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, value, 1e-9)
}

func TestRSI_UsesTrailingWindowOnly(t *testing.T) {
	rsi := NewRSI(2)
	long, err := rsi.Calculate([]float64{50, 60, 100, 101, 102})
	require.NoError(t, err)
	short, err := rsi.Calculate([]float64{100, 101, 102})
	require.NoError(t, err)
	assert.Equal(t, short, long)
}
