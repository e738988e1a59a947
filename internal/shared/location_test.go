package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("warehouse", 3)
	require.NoError(t, err)
	require.Equal(t, Warehouse(3), loc)

	loc, err = ParseLocation("shop", 9)
	require.NoError(t, err)
	require.Equal(t, Shop(9), loc)

	_, err = ParseLocation("dock", 1)
	require.ErrorIs(t, err, ErrInvalidLocation)

	_, err = ParseLocation("warehouse", 0)
	require.ErrorIs(t, err, ErrInvalidLocation)

	_, err = ParseLocation("shop", -2)
	require.ErrorIs(t, err, ErrInvalidLocation)
}

func TestLocationKeyIsStable(t *testing.T) {
	require.Equal(t, "warehouse:3", Warehouse(3).Key())
	require.Equal(t, "shop:9", Shop(9).Key())
	require.NotEqual(t, Warehouse(1).Key(), Shop(1).Key())
}

func TestLocationIsZero(t *testing.T) {
	require.True(t, Location{}.IsZero())
	require.False(t, Warehouse(1).IsZero())
}
