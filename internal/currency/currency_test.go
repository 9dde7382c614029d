package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatTWD(t *testing.T) {
	f, err := NewFormatter("")
	require.NoError(t, err)
	require.Equal(t, TWD, f.Code())
	require.Equal(t, "NT$1,234,567", f.Format(decimal.NewFromFloat(1234567.4)))
	require.Equal(t, "-NT$500", f.Format(decimal.NewFromInt(-500)))
	require.Equal(t, "12,000", f.Number(12000))
}

func TestFormatUSD(t *testing.T) {
	f, err := NewFormatter("usd")
	require.NoError(t, err)
	require.Equal(t, "40", f.Convert(decimal.NewFromInt(1250)).String())
	require.Equal(t, "$3,293", f.Format(decimal.NewFromInt(102900)))
}

func TestUnsupportedCurrency(t *testing.T) {
	_, err := NewFormatter("JPY")
	require.Error(t, err)
	require.Panics(t, func() { MustFormatter("JPY") })
}
