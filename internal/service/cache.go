package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/templui/driveindex/internal/metrics"
	"github.com/templui/driveindex/internal/model"
)

// RecordCache is a per-process LRU of main index records with a TTL.
// A nil *RecordCache is valid and caches nothing.
type RecordCache struct {
	lru *expirable.LRU[model.FileKey, *model.MainIndexRecord]
}

// NewRecordCache returns nil when size is not positive.
func NewRecordCache(size int, ttl time.Duration) *RecordCache {
	if size <= 0 {
		return nil
	}
	return &RecordCache{lru: expirable.NewLRU[model.FileKey, *model.MainIndexRecord](size, nil, ttl)}
}

// Get returns a copy, so callers may modify the result.
func (c *RecordCache) Get(key model.FileKey) (*model.MainIndexRecord, bool) {
	if c == nil {
		return nil, false
	}
	rec, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheMiss()
		return nil, false
	}
	metrics.CacheHit()
	return rec.Clone(), true
}

func (c *RecordCache) Add(rec *model.MainIndexRecord) {
	if c == nil {
		return
	}
	c.lru.Add(rec.Key(), rec.Clone())
}

func (c *RecordCache) Remove(key model.FileKey) {
	if c == nil {
		return
	}
	c.lru.Remove(key)
}

func (c *RecordCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
