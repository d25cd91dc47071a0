package interview

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

type questionEntry struct {
	set        *model.QuestionSet
	insertedAt time.Time
}

// QuestionCache 按预设缓存题目集合，写入后固定 TTL 过期，与访问无关。
// 默认不合并并发未命中；dedupe 打开后同一预设同时只有一次上游请求。
type QuestionCache struct {
	source QuestionSource
	ttl    time.Duration
	clock  Clock
	dedupe bool

	mu      sync.RWMutex
	entries map[string]questionEntry
	group   singleflight.Group
}

func NewQuestionCache(source QuestionSource, ttl time.Duration, clock Clock, dedupe bool) *QuestionCache {
	if clock == nil {
		clock = SystemClock()
	}
	return &QuestionCache{
		source:  source,
		ttl:     ttl,
		clock:   clock,
		dedupe:  dedupe,
		entries: make(map[string]questionEntry),
	}
}

func (c *QuestionCache) expired(e questionEntry, now time.Time) bool {
	return !now.Before(e.insertedAt.Add(c.ttl))
}

// Lookup returns a live entry. Expired entries are deleted on the way out.
func (c *QuestionCache) Lookup(presetID string) (*model.QuestionSet, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[presetID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.expired(e, now) {
		return e.set, true
	}

	c.mu.Lock()
	if current, ok := c.entries[presetID]; ok && c.expired(current, now) {
		delete(c.entries, presetID)
	}
	c.mu.Unlock()
	return nil, false
}

// Store inserts or replaces the entry; the TTL restarts from now.
func (c *QuestionCache) Store(presetID string, set *model.QuestionSet) {
	c.mu.Lock()
	c.entries[presetID] = questionEntry{set: set, insertedAt: c.clock.Now()}
	c.mu.Unlock()
}

// Questions is the read-through path used by session setup.
func (c *QuestionCache) Questions(ctx context.Context, presetID string) (*model.QuestionSet, error) {
	if set, ok := c.Lookup(presetID); ok {
		return set, nil
	}
	if !c.dedupe {
		return c.fetch(ctx, presetID)
	}

	ch := c.group.DoChan(presetID, func() (any, error) {
		if set, ok := c.Lookup(presetID); ok {
			return set, nil
		}
		return c.fetch(context.WithoutCancel(ctx), presetID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.QuestionSet), nil
	}
}

func (c *QuestionCache) fetch(ctx context.Context, presetID string) (*model.QuestionSet, error) {
	set, err := c.source.Questions(ctx, presetID)
	if err != nil {
		return nil, err
	}
	c.Store(presetID, set)
	return set, nil
}

// Sweep drops every expired entry and returns how many were removed.
func (c *QuestionCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on interval until ctx is done.
func (c *QuestionCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				log.Printf("[interview] evicted %d expired question sets", n)
			}
		}
	}
}

func (c *QuestionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
