package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionCacheExpiresAtTTL(t *testing.T) {
	clock := newFakeClock()
	src := &staticQuestions{sets: map[string][]string{"p": {"Q1"}}}
	cache := NewQuestionCache(src, 30*time.Minute, clock, false)
	ctx := context.Background()

	_, err := cache.Questions(ctx, "p")
	require.NoError(t, err)
	_, err = cache.Questions(ctx, "p")
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.calls.Load())

	clock.Advance(30*time.Minute - time.Second)
	_, ok := cache.Lookup("p")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = cache.Lookup("p")
	assert.False(t, ok, "entry expires when age reaches the ttl")
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Questions(ctx, "p")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestQuestionCacheSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewQuestionCache(&staticQuestions{}, time.Minute, clock, false)
	cache.Store("a", nil)
	clock.Advance(30 * time.Second)
	cache.Store("b", nil)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Lookup("b")
	assert.True(t, ok)
}

func TestQuestionCacheFailureNotCached(t *testing.T) {
	src := &staticQuestions{sets: map[string][]string{}}
	cache := NewQuestionCache(src, time.Minute, newFakeClock(), false)

	_, err := cache.Questions(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestQuestionCacheDedupe(t *testing.T) {
	src := &staticQuestions{sets: map[string][]string{"p": {"Q1"}}, delay: 50 * time.Millisecond}
	cache := NewQuestionCache(src, time.Minute, newFakeClock(), true)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := cache.Questions(context.Background(), "p")
			assert.NoError(t, err)
			assert.Equal(t, 1, set.Len())
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
}
