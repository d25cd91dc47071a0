package interview

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AudioCache maps exact prompt text to synthesized audio. Entries live for
// the lifetime of the process.
type AudioCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewAudioCache() *AudioCache {
	return &AudioCache{items: make(map[string][]byte)}
}

func (c *AudioCache) Get(text string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	audio, ok := c.items[text]
	return audio, ok
}

func (c *AudioCache) Put(text string, audio []byte) {
	c.mu.Lock()
	c.items[text] = audio
	c.mu.Unlock()
}

func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// AudioService 在语音合成前加一层缓存，并负责后台预取。
type AudioService struct {
	cache       *AudioCache
	synth       Synthesizer
	concurrency int

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewAudioService(cache *AudioCache, synth Synthesizer, concurrency int) *AudioService {
	if cache == nil {
		cache = NewAudioCache()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &AudioService{cache: cache, synth: synth, concurrency: concurrency}
}

func (a *AudioService) Cached(text string) ([]byte, bool) {
	return a.cache.Get(text)
}

// Synthesize returns cached audio or synthesizes it once. Concurrent callers
// for the same text share one upstream call; a caller whose ctx ends stops
// waiting but the shared call still completes and fills the cache.
func (a *AudioService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if audio, ok := a.cache.Get(text); ok {
		return audio, nil
	}

	ch := a.group.DoChan(text, func() (any, error) {
		if audio, ok := a.cache.Get(text); ok {
			return audio, nil
		}
		audio, err := a.synth.Synthesize(context.WithoutCancel(ctx), text)
		if err != nil {
			return nil, err
		}
		a.cache.Put(text, audio)
		return audio, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Prefetch synthesizes texts in the background with bounded concurrency.
// Failures are logged per item and never reach the caller.
func (a *AudioService) Prefetch(ctx context.Context, texts []string) {
	if len(texts) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for _, text := range texts {
			g.Go(func() error {
				if _, err := a.Synthesize(ctx, text); err != nil {
					log.Printf("[interview] prefetch audio failed for %q: %v", truncate(text, 40), err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Go runs fn as tracked background audio work.
func (a *AudioService) Go(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Wait blocks until all background work has finished.
func (a *AudioService) Wait() {
	a.wg.Wait()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
