package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextbridge/backend/internal/types"
)

func ctx(url string) *types.PageContext {
	return &types.PageContext{URL: url, Timestamp: types.NowMillis()}
}

func TestPutAndGet(t *testing.T) {
	s := NewContexts()

	_, ok := s.Get("https://example.com/a")
	assert.False(t, ok)

	a := ctx("https://example.com/a")
	s.Put(a)

	got, ok := s.Get("https://example.com/a")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestGetFallsBackToMostRecent(t *testing.T) {
	s := NewContexts()
	s.Put(ctx("https://example.com/a"))
	b := ctx("https://example.com/b")
	s.Put(b)

	// Unknown URL serves the most recent context.
	got, ok := s.Get("https://example.com/unseen")
	require.True(t, ok)
	assert.Same(t, b, got)

	// Empty URL reads the default slot.
	got, ok = s.Get("")
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestPutEmptyURLUsesDefaultKey(t *testing.T) {
	s := NewContexts()
	c := ctx("")
	s.Put(c)

	got, ok := s.Get("")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, s.Len())
}

func TestPutNilIsNoOp(t *testing.T) {
	s := NewContexts()
	s.Put(nil)
	assert.Zero(t, s.Len())
}

func TestHistoryOrderAndCap(t *testing.T) {
	s := NewContexts()
	for i := 0; i < 105; i++ {
		s.Put(ctx(fmt.Sprintf("https://example.com/p%d", i)))
	}

	hist := s.History()
	require.Len(t, hist, 100)
	assert.Equal(t, "https://example.com/p5", hist[0].URL)
	assert.Equal(t, "https://example.com/p104", hist[99].URL)
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewContexts()
	s.Put(ctx("https://example.com/a"))

	hist := s.History()
	hist[0] = nil
	assert.NotNil(t, s.History()[0])
}
