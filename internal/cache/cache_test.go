package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2025, 8, 22, 9, 0, 0, 0, time.UTC)
	c := New[int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New[string](time.Minute)
	calls := 0
	fn := func() (string, error) {
		calls++
		return "summary", nil
	}

	v, err := c.GetOrCompute("admin", fn)
	require.NoError(t, err)
	assert.Equal(t, "summary", v)

	_, _ = c.GetOrCompute("admin", fn)
	assert.Equal(t, 1, calls)

	c.Clear()
	_, _ = c.GetOrCompute("admin", fn)
	assert.Equal(t, 2, calls)

	_, err = c.GetOrCompute("broken", func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err)
	_, ok := c.Get("broken")
	assert.False(t, ok)
}

func TestCache_ClearDuringComputeIsNotCached(t *testing.T) {
	c := New[int](time.Minute)

	v, err := c.GetOrCompute("dashboard", func() (int, error) {
		c.Clear()
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, ok := c.Get("dashboard")
	assert.False(t, ok)

	v, err = c.GetOrCompute("dashboard", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, ok = c.Get("dashboard")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
