package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.01", 1},
		{"10.00", 10_00},
		{"200", 200_00},
		{"-5.50", -5_50},
		{"92233720368547758.07", 9223372036854775807},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			d, err := decimal.NewFromString(c.in)
			require.NoError(t, err)
			got, err := MinorUnits(d)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestMinorUnits_Rejected(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"sub-cent precision", "1.005"},
		{"just past int64 minor units", "92233720368547758.08"},
		{"far past int64 minor units", "184467440737095516.17"},
		{"negative overflow", "-92233720368547758.09"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := decimal.NewFromString(c.in)
			require.NoError(t, err)
			_, err = MinorUnits(d)
			require.Error(t, err)
		})
	}
}

func TestDecimalFromMinor(t *testing.T) {
	require.Equal(t, "1.00", DecimalFromMinor(100).StringFixed(2))
	require.Equal(t, "0.01", DecimalFromMinor(1).StringFixed(2))
	require.Equal(t, "-2.50", DecimalFromMinor(-250).StringFixed(2))
}
