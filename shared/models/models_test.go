package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	generated := GenerateUUID()
	parsed, err := NewID(generated.String())
	require.NoError(t, err)
	assert.Equal(t, generated, parsed)

	_, err = NewID("not-a-uuid")
	assert.Error(t, err)

	assert.True(t, ID("").IsZero())
	assert.False(t, generated.IsZero())
}

func TestMoney(t *testing.T) {
	t.Run("add and subtract", func(t *testing.T) {
		sum, err := NewMoney(2500, "USD").Add(NewMoney(500, "USD"))
		require.NoError(t, err)
		assert.Equal(t, NewMoney(3000, "USD"), sum)

		diff, err := sum.Subtract(NewMoney(3000, "USD"))
		require.NoError(t, err)
		assert.True(t, diff.IsZero())
	})

	t.Run("currency mismatch", func(t *testing.T) {
		_, err := NewMoney(100, "USD").Add(NewMoney(100, "EUR"))
		assert.Error(t, err)

		_, err = NewMoney(100, "USD").Subtract(NewMoney(100, "EUR"))
		assert.Error(t, err)
	})

	t.Run("sign checks", func(t *testing.T) {
		assert.True(t, NewMoney(1, "USD").IsPositive())
		assert.False(t, NewMoney(0, "USD").IsPositive())
		assert.False(t, NewMoney(-1, "USD").IsPositive())
	})
}

func TestVersionUpdate(t *testing.T) {
	v := NewVersion()
	assert.Equal(t, 1, v.Value)
	assert.Equal(t, 2, v.Update().Value)
	// Update returns a copy.
	assert.Equal(t, 1, v.Value)
}
