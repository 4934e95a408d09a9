package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRistretto_RoundTrip(t *testing.T) {
	c, err := NewRistretto()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Count: 3}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Count: 3}, got)
}

func TestRistretto_MissAndDelete(t *testing.T) {
	c, err := NewRistretto()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var got payload
	assert.True(t, IsCacheMiss(c.Get(ctx, "absent", &got)))

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.True(t, IsCacheMiss(c.Get(ctx, "k", &got)))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "image:1:42", ImageKey(1, 42))
	assert.Equal(t, "stats:7", StatsKey(7))
	assert.NotEqual(t, ImageKey(1, 42), ImageKey(42, 1))
}
