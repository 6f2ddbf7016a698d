package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("resolve", "Kinderopvang Zonnetje", "Utrecht")
	b := Key("resolve", "  kinderopvang zonnetje ", "UTRECHT")
	c := Key("resolve", "Kinderopvang Zonnetje", "Amersfoort")
	d := Key("fetch", "Kinderopvang Zonnetje", "Utrecht")

	assert.Equal(t, a, b, "正規化後に同じ引数なら同じキー")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "resolve:")
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Len())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	type payload struct {
		URL string
	}
	require.NoError(t, SetJSON(ctx, m, "p", payload{URL: "https://example.nl"}))

	var out payload
	require.NoError(t, GetJSON(ctx, m, "p", &out))
	assert.Equal(t, "https://example.nl", out.URL)

	require.NoError(t, m.Set(ctx, "broken", []byte("{")))
	assert.Error(t, GetJSON(ctx, m, "broken", &out))
}
